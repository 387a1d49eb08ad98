// Package notes renders lesson notebooks (.ipynb) as markdown.
package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound     = errors.New("notebook not found")
	ErrInvalidInput = errors.New("invalid notebook name")
	ErrMalformed    = errors.New("malformed notebook")
)

type notebook struct {
	Cells []cell `json:"cells"`
}

type cell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// Store reads notebooks from a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Markdown loads a notebook by name (".ipynb" optional) and renders it.
func (s *Store) Markdown(name string) (string, error) {
	if !strings.HasSuffix(name, ".ipynb") {
		name += ".ipynb"
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidInput)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("reading notebook %s: %w", name, err)
	}

	md, err := Render(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return md, nil
}

// Render converts notebook JSON to markdown. Markdown cells are copied,
// code cells are fenced as python, other cells are dropped.
func Render(data []byte) (string, error) {
	var nb notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	parts := make([]string, 0, len(nb.Cells))
	for _, c := range nb.Cells {
		src, err := joinSource(c.Source)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch c.CellType {
		case "markdown":
			parts = append(parts, src)
		case "code":
			parts = append(parts, "```python\n"+src+"\n```")
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// joinSource accepts both notebook encodings of cell source: a list of
// lines or a single string.
func joinSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, ""), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
