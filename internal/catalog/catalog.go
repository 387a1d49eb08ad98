// Package catalog holds the static topic mapping: which chapters exist, which
// topics belong to them and which JSON file backs each topic.
package catalog

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topic maps a canonical topic id to its exercise file.
type Topic struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	File  string `yaml:"file" json:"-"`
}

// Chapter is an ordered group of topics. Dir is the content directory
// scanned for unmapped topics and defaults to the chapter id.
type Chapter struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Dir    string  `yaml:"dir" json:"-"`
	Topics []Topic `yaml:"topics" json:"topics"`
}

type topicRef struct {
	chapter int
	topic   int
}

// Catalog is read-only after Load.
type Catalog struct {
	Chapters []Chapter `yaml:"chapters"`

	topics   map[string]topicRef
	chapters map[string]int
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.topics = make(map[string]topicRef)
	c.chapters = make(map[string]int)

	for ci := range c.Chapters {
		ch := &c.Chapters[ci]
		if ch.ID == "" {
			return fmt.Errorf("chapter %d has no id", ci+1)
		}
		if _, dup := c.chapters[ch.ID]; dup {
			return fmt.Errorf("duplicate chapter id %q", ch.ID)
		}
		if ch.Title == "" {
			ch.Title = ch.ID
		}
		if ch.Dir == "" {
			ch.Dir = ch.ID
		}
		c.chapters[ch.ID] = ci

		for ti := range ch.Topics {
			t := &ch.Topics[ti]
			if t.ID == "" {
				return fmt.Errorf("chapter %q: topic %d has no id", ch.ID, ti+1)
			}
			if strings.TrimSpace(t.File) == "" {
				return fmt.Errorf("topic %q has no file", t.ID)
			}
			if _, dup := c.topics[t.ID]; dup {
				return fmt.Errorf("duplicate topic id %q", t.ID)
			}
			if t.Title == "" {
				t.Title = t.ID
			}
			t.File = path.Clean(t.File)
			c.topics[t.ID] = topicRef{chapter: ci, topic: ti}
		}
	}
	return nil
}

// Topic returns the mapping for a topic id and the chapter that owns it.
func (c *Catalog) Topic(id string) (Topic, Chapter, bool) {
	ref, ok := c.topics[id]
	if !ok {
		return Topic{}, Chapter{}, false
	}
	ch := c.Chapters[ref.chapter]
	return ch.Topics[ref.topic], ch, true
}

// Chapter returns a chapter by id.
func (c *Catalog) Chapter(id string) (Chapter, bool) {
	i, ok := c.chapters[id]
	if !ok {
		return Chapter{}, false
	}
	return c.Chapters[i], true
}

// TopicTitle falls back to the id for unmapped topics.
func (c *Catalog) TopicTitle(id string) string {
	if t, _, ok := c.Topic(id); ok {
		return t.Title
	}
	return id
}

// ChapterTitle falls back to the id for unknown chapters.
func (c *Catalog) ChapterTitle(id string) string {
	if ch, ok := c.Chapter(id); ok {
		return ch.Title
	}
	return id
}

// ChapterFor returns the chapter whose directory is dir, if any.
func (c *Catalog) ChapterFor(dir string) (Chapter, bool) {
	for _, ch := range c.Chapters {
		if ch.Dir == dir {
			return ch, true
		}
	}
	return Chapter{}, false
}

// Dirs lists chapter directories in catalog order without duplicates.
func (c *Catalog) Dirs() []string {
	seen := make(map[string]bool, len(c.Chapters))
	dirs := make([]string, 0, len(c.Chapters))
	for _, ch := range c.Chapters {
		if seen[ch.Dir] {
			continue
		}
		seen[ch.Dir] = true
		dirs = append(dirs, ch.Dir)
	}
	return dirs
}
