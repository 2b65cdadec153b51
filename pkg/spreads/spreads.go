// Package spreads holds the catalog of tarot spreads: names, card counts, slot meanings,
// image layout and the preliminary questions asked before a reading.
package spreads

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed spreads.yaml
var embeddedCatalog []byte

// DefaultQuestionCap bounds clarifying questions for spreads the catalog does not know.
const DefaultQuestionCap = 3

// Slot is the placement of one card on the spread image.
type Slot struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
}

// Question is a preliminary question asked before the cards are drawn.
type Question struct {
	Text           string `yaml:"text"`
	Hint           string `yaml:"hint"`
	ExpectedLength string `yaml:"expected_length"`
	ID             int    `yaml:"id"`
}

// Spread describes one spread type.
type Spread struct {
	Key           string     `yaml:"key"`
	Callback      string     `yaml:"callback"`
	Name          string     `yaml:"name"`
	Button        string     `yaml:"button"`
	EstimatedTime string     `yaml:"estimated_time"`
	Positions     []string   `yaml:"positions"`
	Layout        []Slot     `yaml:"layout"`
	Preliminary   []Question `yaml:"preliminary"`
	CardCount     int        `yaml:"card_count"`
	QuestionCap   int        `yaml:"question_cap"`
	BackgroundID  int        `yaml:"background_id"`
	Scale         float64    `yaml:"scale"`
}

type catalogFile struct {
	LengthDescriptions map[string]string `yaml:"length_descriptions"`
	Spreads            []Spread          `yaml:"spreads"`
}

// Catalog is an immutable, ordered set of spreads.
type Catalog struct {
	byKey      map[string]int
	byCallback map[string]int
	lengths    map[string]string
	spreads    []Spread
}

// Load parses and validates a YAML spread catalog.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read spread catalog: %w", err)
	}
	return parse(data)
}

// LoadFile loads a spread catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spread catalog %s: %w", path, err)
	}
	c, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. It is parsed once per process.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(bytes.NewReader(embeddedCatalog))
	})
	return defaultCatalog, defaultErr
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse spread catalog: %w", err)
	}
	if len(file.Spreads) == 0 {
		return nil, fmt.Errorf("spread catalog has no spreads")
	}

	c := &Catalog{
		spreads:    file.Spreads,
		byKey:      make(map[string]int, len(file.Spreads)),
		byCallback: make(map[string]int, len(file.Spreads)),
		lengths:    file.LengthDescriptions,
	}
	for i := range file.Spreads {
		s := &file.Spreads[i]
		if err := validateSpread(s); err != nil {
			return nil, err
		}
		if _, dup := c.byKey[s.Key]; dup {
			return nil, fmt.Errorf("duplicate spread key %q", s.Key)
		}
		if _, dup := c.byCallback[s.Callback]; dup {
			return nil, fmt.Errorf("duplicate spread callback %q", s.Callback)
		}
		c.byKey[s.Key] = i
		c.byCallback[s.Callback] = i
	}
	return c, nil
}

func validateSpread(s *Spread) error {
	var problems []string
	if s.Key == "" {
		problems = append(problems, "key is required")
	}
	if s.Callback == "" {
		problems = append(problems, "callback is required")
	}
	if s.Name == "" {
		problems = append(problems, "name is required")
	}
	if s.CardCount < 1 {
		problems = append(problems, "card_count must be at least 1")
	}
	if len(s.Positions) != s.CardCount {
		problems = append(problems, fmt.Sprintf("has %d positions for %d cards", len(s.Positions), s.CardCount))
	}
	if len(s.Layout) != s.CardCount {
		problems = append(problems, fmt.Sprintf("has %d layout slots for %d cards", len(s.Layout), s.CardCount))
	}
	if s.QuestionCap < 1 {
		problems = append(problems, "question_cap must be at least 1")
	}
	if s.Scale <= 0 || s.Scale > 1 {
		problems = append(problems, "scale must be in (0, 1]")
	}
	if s.BackgroundID < 1 {
		problems = append(problems, "background_id must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("spread %q: %s", s.Key, strings.Join(problems, "; "))
	}
	return nil
}

// All returns the spreads in menu order.
func (c *Catalog) All() []Spread {
	out := make([]Spread, len(c.spreads))
	copy(out, c.spreads)
	return out
}

// ByKey looks a spread up by its key, e.g. "celtic_cross".
func (c *Catalog) ByKey(key string) (Spread, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Spread{}, false
	}
	return c.spreads[i], true
}

// ByCallback looks a spread up by its menu button payload, e.g. "spread_celtic".
func (c *Catalog) ByCallback(callback string) (Spread, bool) {
	i, ok := c.byCallback[callback]
	if !ok {
		return Spread{}, false
	}
	return c.spreads[i], true
}

// QuestionCap returns how many clarifying questions a spread keeps.
func (c *Catalog) QuestionCap(key string) int {
	if s, ok := c.ByKey(key); ok {
		return s.QuestionCap
	}
	return DefaultQuestionCap
}

// LengthDescription explains an expected answer length ("short", "medium", "long").
func (c *Catalog) LengthDescription(kind string) string {
	return c.lengths[kind]
}

// Label is the menu button text, falling back to the name.
func (s Spread) Label() string {
	if s.Button != "" {
		return s.Button
	}
	return s.Name
}

// Position returns the meaning of slot i. Out-of-range slots get a numbered name.
func (s Spread) Position(i int) string {
	if i >= 0 && i < len(s.Positions) {
		return s.Positions[i]
	}
	return fmt.Sprintf("Позиция %d", i+1)
}
