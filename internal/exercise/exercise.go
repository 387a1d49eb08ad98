// Package exercise resolves loosely specified topic, chapter and exercise
// identifiers to exercise records stored as JSON files.
package exercise

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// StarterCode is used when a source exercise carries none.
const StarterCode = "# Your code here\n\n"

// Exercise is an open JSON object. Keys not known to the resolver are kept
// as-is so content authors can add fields without code changes.
type Exercise map[string]any

// ID returns the exercise id.
func (e Exercise) ID() string { return e.str("id") }

func (e Exercise) Title() string { return e.str("title") }

func (e Exercise) Difficulty() string { return e.str("difficulty") }

func (e Exercise) ChapterID() string { return e.str("chapter_id") }

func (e Exercise) TopicID() string { return e.str("topic_id") }

func (e Exercise) Description() string { return e.str("description") }

func (e Exercise) Instructions() string { return e.str("instructions") }

// Number returns exercise_number as a string, or "" when absent.
func (e Exercise) Number() string { return e.str("exercise_number") }

func (e Exercise) str(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}

// has reports whether key is present with a non-blank value.
func (e Exercise) has(key string) bool {
	v, ok := e[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func (e Exercise) setDefault(key string, v any) {
	if !e.has(key) {
		e[key] = v
	}
}
