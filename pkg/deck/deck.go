// Package deck loads the 78-card tarot catalog and exposes read-only lookups.
package deck

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"tarotbot/pkg/logx"
)

// StandardSize is the number of cards in a full tarot deck.
const StandardSize = 78

//go:embed catalog/cards.json
var embeddedCatalog []byte

// Meanings groups the upright (light) and reversed (shadow) readings of a card.
type Meanings struct {
	Light  []string `json:"light"`
	Shadow []string `json:"shadow"`
}

// Card is one catalog entry. Values are immutable; slice accessors return copies.
type Card struct {
	Name           string   `json:"name"`
	Number         string   `json:"number"`
	Arcana         string   `json:"arcana"`
	Suit           string   `json:"suit"`
	Image          string   `json:"img"`
	keywords       []string
	fortuneTelling []string
	light          []string
	shadow         []string
}

// Keywords returns the card's keywords.
func (c Card) Keywords() []string { return clone(c.keywords) }

// FortuneTelling returns the card's fortune-telling phrases.
func (c Card) FortuneTelling() []string { return clone(c.fortuneTelling) }

// Meanings returns the light and shadow meanings.
func (c Card) Meanings() Meanings {
	return Meanings{Light: clone(c.light), Shadow: clone(c.shadow)}
}

// IsMajor reports whether the card belongs to the major arcana.
func (c Card) IsMajor() bool {
	return strings.HasPrefix(strings.ToLower(c.Arcana), "старш") || strings.EqualFold(c.Arcana, "major")
}

// NewCard builds a card value. Used by tests and alternative catalogs.
func NewCard(name, number, arcana, suit, image string, keywords, fortune []string, m Meanings) Card {
	return Card{
		Name:           name,
		Number:         number,
		Arcana:         arcana,
		Suit:           suit,
		Image:          image,
		keywords:       clone(keywords),
		fortuneTelling: clone(fortune),
		light:          clone(m.Light),
		shadow:         clone(m.Shadow),
	}
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// CatalogError reports a missing or malformed card catalog. It is fatal at startup.
type CatalogError struct {
	Err    error
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	var b strings.Builder
	b.WriteString("card catalog")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CatalogError) Unwrap() error { return e.Err }

// Deck is an ordered, read-only sequence of cards. Safe for concurrent use.
type Deck struct {
	cards []Card
}

// CardCount returns the number of cards.
func (d *Deck) CardCount() int { return len(d.cards) }

// Get returns the card at index i.
func (d *Deck) Get(i int) (Card, bool) {
	if i < 0 || i >= len(d.cards) {
		return Card{}, false
	}
	return d.cards[i], true
}

// Cards returns a copy of the deck in catalog order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Find returns the card with the given name.
func (d *Deck) Find(name string) (Card, bool) {
	for i := range d.cards {
		if d.cards[i].Name == name {
			return d.cards[i], true
		}
	}
	return Card{}, false
}

// rawCard mirrors the catalog JSON with pointer fields so missing keys can be told apart from empty values.
type rawCard struct {
	Name           *string   `json:"name"`
	Number         any       `json:"number"`
	Arcana         *string   `json:"arcana"`
	Suit           *string   `json:"suit"`
	Image          *string   `json:"img"`
	Keywords       *[]string `json:"keywords"`
	FortuneTelling *[]string `json:"fortune_telling"`
	Meanings       *struct {
		Light  *[]string `json:"light"`
		Shadow *[]string `json:"shadow"`
	} `json:"meanings"`
}

// Load parses a catalog document.
func Load(r io.Reader) (*Deck, error) {
	return load(r, "")
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CatalogError{Path: path, Reason: "cannot open catalog", Err: err}
	}
	defer func() { _ = f.Close() }()
	return load(f, path)
}

//nolint:gochecknoglobals // Embedded catalog singleton
var (
	defaultOnce sync.Once
	defaultDeck *Deck
	defaultErr  error
)

// Default returns the embedded catalog, parsed once.
func Default() (*Deck, error) {
	defaultOnce.Do(func() {
		defaultDeck, defaultErr = load(bytes.NewReader(embeddedCatalog), "embedded")
	})
	return defaultDeck, defaultErr
}

func load(r io.Reader, path string) (*Deck, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &CatalogError{Path: path, Reason: "cannot read catalog", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &CatalogError{Path: path, Reason: "catalog is empty"}
	}

	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &CatalogError{Path: path, Reason: "malformed JSON", Err: err}
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return nil, &CatalogError{Path: path, Reason: "top level is not an object"}
	}
	rawList, ok := obj["cards"]
	if !ok {
		return nil, &CatalogError{Path: path, Reason: `missing "cards" list`}
	}
	if _, isList := rawList.([]any); !isList {
		return nil, &CatalogError{Path: path, Reason: `"cards" is not a list`}
	}

	var doc struct {
		Cards []rawCard `json:"cards"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CatalogError{Path: path, Reason: "malformed card entry", Err: err}
	}

	cards := make([]Card, 0, len(doc.Cards))
	for i := range doc.Cards {
		card, err := convert(&doc.Cards[i])
		if err != nil {
			return nil, &CatalogError{Path: path, Reason: fmt.Sprintf("card %d", i), Err: err}
		}
		cards = append(cards, card)
	}

	if len(cards) != StandardSize {
		logx.NewLogger("deck").Warn("catalog has %d cards, expected %d", len(cards), StandardSize)
	}
	return &Deck{cards: cards}, nil
}

var errMissingField = errors.New("missing required field")

func convert(rc *rawCard) (Card, error) {
	missing := func(field string) error { return fmt.Errorf("%w %q", errMissingField, field) }

	switch {
	case rc.Name == nil || strings.TrimSpace(*rc.Name) == "":
		return Card{}, missing("name")
	case rc.Arcana == nil:
		return Card{}, missing("arcana")
	case rc.Suit == nil:
		return Card{}, missing("suit")
	case rc.Image == nil:
		return Card{}, missing("img")
	case rc.Keywords == nil:
		return Card{}, missing("keywords")
	case rc.FortuneTelling == nil:
		return Card{}, missing("fortune_telling")
	case rc.Meanings == nil:
		return Card{}, missing("meanings")
	case rc.Meanings.Light == nil:
		return Card{}, missing("meanings.light")
	case rc.Meanings.Shadow == nil:
		return Card{}, missing("meanings.shadow")
	}

	var number string
	switch n := rc.Number.(type) {
	case string:
		number = strings.TrimSpace(n)
	case float64:
		number = fmt.Sprintf("%d", int(n))
	}
	if number == "" {
		return Card{}, missing("number")
	}

	return NewCard(*rc.Name, number, *rc.Arcana, *rc.Suit, *rc.Image,
		*rc.Keywords, *rc.FortuneTelling, Meanings{Light: *rc.Meanings.Light, Shadow: *rc.Meanings.Shadow}), nil
}
