package exercise

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// readFile decodes a JSON file holding either one exercise object or an
// array of them. Numbers are kept as json.Number so they re-encode unchanged.
func readFile(path string) ([]Exercise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exercise file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse exercise file %s: %w", path, err)
	}

	switch v := doc.(type) {
	case map[string]any:
		return []Exercise{Exercise(v)}, nil
	case []any:
		out := make([]Exercise, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parse exercise file %s: element %d is not an object", path, i)
			}
			out = append(out, Exercise(obj))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("parse exercise file %s: expected object or array", path)
	}
}

// origin describes where a batch of exercises came from.
type origin struct {
	topicID      string
	topicTitle   string
	chapterID    string
	chapterTitle string
}

// enrich fills in the fields every client-facing exercise must carry.
// Fields already present in the source are left alone, except the topic
// and chapter labels which always reflect the resolved location.
func enrich(exs []Exercise, o origin) []Exercise {
	for i, ex := range exs {
		ordinal := i + 1

		if ex.has("exercise_number") {
			ex.setDefault("title", "Exercise "+ex.Number())
		} else {
			ex.setDefault("title", fmt.Sprintf("Exercise %d", ordinal))
			ex["exercise_number"] = json.Number(fmt.Sprint(ordinal))
		}
		ex.setDefault("id", fmt.Sprintf("%s_%03d", o.topicID, ordinal))
		ex.setDefault("difficulty", "beginner")
		ex.setDefault("chapter_id", o.chapterID)

		ex["topic_id"] = o.topicID
		ex["topic_title"] = o.topicTitle
		ex["chapter_title"] = o.chapterTitle

		if legacy := ex.str("exercise"); legacy != "" {
			ex.setDefault("description", legacy)
			ex.setDefault("instructions", legacy)
		}
		if nb := ex.str("notebook"); nb != "" {
			ex.setDefault("file_name", nb)
		}
		ex.setDefault("starterCode", StarterCode)
	}
	return exs
}
