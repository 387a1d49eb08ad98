package exercise

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/michaelbrown/pylearn/internal/catalog"
	"github.com/rs/zerolog"
)

// Resolver maps topic, chapter and exercise ids to enriched exercises.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	root    string
	catalog *catalog.Catalog
	logger  *zerolog.Logger
}

// NewResolver creates a resolver reading files under root.
func NewResolver(root string, cat *catalog.Catalog, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{root: root, catalog: cat, logger: logger}
}

// Catalog exposes the mapping table the resolver was built with.
func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }

// ForTopic returns the exercises of a topic. Resolution order is the exact
// catalog mapping, then a scan of chapter directories for a similarly named
// file, then every file sharing the topic's numeric prefix. An unknown topic
// yields an empty slice.
func (r *Resolver) ForTopic(topicID string) []Exercise {
	if topic, ch, ok := r.catalog.Topic(topicID); ok {
		return r.load(topic.File, origin{
			topicID:      topic.ID,
			topicTitle:   topic.Title,
			chapterID:    ch.ID,
			chapterTitle: ch.Title,
		})
	}

	if exs, ok := r.scan(topicID); ok {
		return exs
	}

	if prefix, _ := splitPrefix(topicID); prefix != "" {
		if exs := r.prefixGroup(prefix); len(exs) > 0 {
			return exs
		}
	}

	r.logger.Debug().Str("topic", topicID).Msg("no exercises for topic")
	return []Exercise{}
}

// ForChapter concatenates the exercises of every catalog topic in the chapter.
func (r *Resolver) ForChapter(chapterID string) []Exercise {
	ch, ok := r.catalog.Chapter(chapterID)
	if !ok {
		return []Exercise{}
	}
	out := []Exercise{}
	for _, t := range ch.Topics {
		out = append(out, r.ForTopic(t.ID)...)
	}
	return out
}

// ByID finds a single exercise. Ids of the form {topic}_{n} are tried
// against that topic first, then every chapter is scanned for a matching
// id or exercise_number.
func (r *Resolver) ByID(exerciseID string) (Exercise, error) {
	if i := strings.LastIndex(exerciseID, "_"); i > 0 && isDigits(exerciseID[i+1:]) {
		for _, ex := range r.ForTopic(exerciseID[:i]) {
			if ex.ID() == exerciseID {
				return ex, nil
			}
		}
	}

	for _, ch := range r.catalog.Chapters {
		for _, ex := range r.ForChapter(ch.ID) {
			if ex.ID() == exerciseID || ex.Number() == exerciseID {
				return ex, nil
			}
		}
	}
	return nil, fmt.Errorf("exercise %s: %w", exerciseID, ErrNotFound)
}

// ByRawPath resolves "{chapter}/{topic}.json": the topic first, then the
// whole chapter, otherwise an empty slice.
func (r *Resolver) ByRawPath(raw string) ([]Exercise, error) {
	if raw == "" || strings.HasPrefix(raw, "/") || filepath.IsAbs(raw) {
		return nil, fmt.Errorf("raw path %q: %w", raw, ErrInvalidInput)
	}
	for _, part := range strings.Split(raw, "/") {
		if part == ".." {
			return nil, fmt.Errorf("raw path %q: %w", raw, ErrInvalidInput)
		}
	}

	parts := strings.Split(path.Clean(raw), "/")
	if len(parts) < 2 {
		return []Exercise{}, nil
	}
	chapterID := parts[0]
	topicID := strings.TrimSuffix(parts[1], ".json")

	if exs := r.ForTopic(topicID); len(exs) > 0 {
		return exs, nil
	}
	return r.ForChapter(chapterID), nil
}

// Chapters returns the catalog's chapters in order.
func (r *Resolver) Chapters() []catalog.Chapter {
	out := make([]catalog.Chapter, len(r.catalog.Chapters))
	copy(out, r.catalog.Chapters)
	return out
}

// Chapter returns one chapter of the catalog.
func (r *Resolver) Chapter(id string) (catalog.Chapter, error) {
	ch, ok := r.catalog.Chapter(id)
	if !ok {
		return catalog.Chapter{}, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	return ch, nil
}

// load reads a file relative to the content root. A broken file is logged
// and contributes nothing.
func (r *Resolver) load(rel string, o origin) []Exercise {
	full := filepath.Join(r.root, filepath.FromSlash(rel))
	exs, err := readFile(full)
	if err != nil {
		r.logger.Warn().Err(err).Str("file", rel).Msg("skipping exercise file")
		return []Exercise{}
	}
	return enrich(exs, o)
}

// scan looks for the first file in catalog chapter order whose name
// resembles the topic id.
func (r *Resolver) scan(topicID string) ([]Exercise, bool) {
	want := normalize(topicID)
	if want == "" {
		return nil, false
	}

	for _, dir := range r.catalog.Dirs() {
		for _, name := range r.jsonFiles(dir) {
			stem := strings.TrimSuffix(name, ".json")
			if !matches(normalize(stem), want) {
				continue
			}
			r.logger.Debug().Str("topic", topicID).Str("file", path.Join(dir, name)).Msg("fallback scan matched")
			return r.load(path.Join(dir, name), r.originFor(topicID, dir)), true
		}
	}
	return nil, false
}

// prefixGroup collects every file carrying the given numeric prefix.
func (r *Resolver) prefixGroup(prefix string) []Exercise {
	var out []Exercise
	for _, dir := range r.catalog.Dirs() {
		for _, name := range r.jsonFiles(dir) {
			stem := strings.TrimSuffix(name, ".json")
			p, rest := splitPrefix(stem)
			if p != prefix {
				continue
			}
			topicID := rest
			if topicID == "" {
				topicID = stem
			}
			out = append(out, r.load(path.Join(dir, name), r.originFor(topicID, dir))...)
		}
	}
	return out
}

func (r *Resolver) originFor(topicID, dir string) origin {
	o := origin{
		topicID:      topicID,
		topicTitle:   r.catalog.TopicTitle(topicID),
		chapterID:    dir,
		chapterTitle: dir,
	}
	if ch, ok := r.catalog.ChapterFor(dir); ok {
		o.chapterID = ch.ID
		o.chapterTitle = ch.Title
	}
	return o
}

// jsonFiles lists .json files in a chapter directory in lexical order.
func (r *Resolver) jsonFiles(dir string) []string {
	entries, err := os.ReadDir(filepath.Join(r.root, filepath.FromSlash(dir)))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn().Err(err).Str("dir", dir).Msg("reading chapter directory")
		}
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
