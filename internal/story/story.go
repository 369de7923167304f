// Package story holds the passage collection a narrative engine runs
// against.
//
// Passages are keyed by name. Stories load from YAML documents; each
// passage carries its prose, outgoing links, optional tags, and an
// optional Lua script that runs on arrival.
package story

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"gopkg.in/yaml.v3"
)

// Passage is one narrative checkpoint.
type Passage struct {
	Name    string   `yaml:"name"`
	Content string   `yaml:"content"`
	Links   []string `yaml:"links,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	// Script is an optional Lua snippet executed on arrival. It reads
	// and mutates the story variables through the global "vars" table.
	Script string `yaml:"script,omitempty"`
}

// Store maps passage names to passages.
type Store struct {
	title    string
	start    string
	passages map[string]Passage
}

// document is the YAML shape of a story file.
type document struct {
	Title    string    `yaml:"title"`
	Start    string    `yaml:"start"`
	Passages []Passage `yaml:"passages"`
}

// NewStore creates an empty store with the given title and starting
// passage name.
func NewStore(title, start string) *Store {
	return &Store{
		title:    title,
		start:    start,
		passages: make(map[string]Passage),
	}
}

// Load reads a YAML story document.
func Load(r io.Reader) (*Store, error) {
	var doc document
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode story: %w", err)
	}
	if strings.TrimSpace(doc.Start) == "" {
		return nil, fmt.Errorf("story requires a start passage")
	}

	store := NewStore(doc.Title, doc.Start)
	for _, passage := range doc.Passages {
		if err := store.Add(passage); err != nil {
			return nil, err
		}
	}
	if !store.Has(doc.Start) {
		return nil, apperrors.WithMetadata(apperrors.CodePassageNotFound,
			fmt.Sprintf("start passage %q is not defined", doc.Start),
			map[string]string{"passage": doc.Start})
	}
	return store, nil
}

// LoadFile reads a YAML story document from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open story file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Add registers a passage. Names must be non-empty and unique.
func (s *Store) Add(passage Passage) error {
	name := strings.TrimSpace(passage.Name)
	if name == "" {
		return apperrors.New(apperrors.CodePassageNameEmpty, "passage name is required")
	}
	if _, exists := s.passages[name]; exists {
		return apperrors.WithMetadata(apperrors.CodePassageDuplicate,
			fmt.Sprintf("passage %q is already defined", name),
			map[string]string{"passage": name})
	}
	passage.Name = name
	s.passages[name] = passage
	return nil
}

// Has reports whether a passage exists.
func (s *Store) Has(name string) bool {
	_, ok := s.passages[name]
	return ok
}

// Get fetches a passage by name.
func (s *Store) Get(name string) (Passage, error) {
	passage, ok := s.passages[name]
	if !ok {
		return Passage{}, apperrors.WithMetadata(apperrors.CodePassageNotFound,
			fmt.Sprintf("passage %q is not defined", name),
			map[string]string{"passage": name})
	}
	return passage, nil
}

// Names returns every passage name in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.passages))
	for name := range s.passages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Title returns the story title.
func (s *Store) Title() string {
	return s.title
}

// Start returns the starting passage name.
func (s *Store) Start() string {
	return s.start
}
