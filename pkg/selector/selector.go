// Package selector draws the cards of a spread deterministically from the user's magic number and age.
package selector

import (
	"tarotbot/pkg/deck"
	"tarotbot/pkg/llmerrors"
	"tarotbot/pkg/pyrand"
)

// Request describes one draw.
type Request struct {
	// Age is optional. A nil age changes the seed formula, so callers must record whether it was used.
	Age         *int
	Count       int
	MagicNumber int
	// Nonce is informational and never enters the seed.
	Nonce int64
}

// Result is an ordered set of distinct cards. Order is the position in the spread.
type Result struct {
	Cards   []deck.Card
	Seed    int64
	AgeUsed bool
}

// Names returns the card names in draw order.
func (r Result) Names() []string {
	names := make([]string, len(r.Cards))
	for i := range r.Cards {
		names[i] = r.Cards[i].Name
	}
	return names
}

// SeedFor derives the generator seed. It is magic+age when age is known, otherwise magic.
func SeedFor(magicNumber int, age *int) int64 {
	if age != nil {
		return int64(magicNumber) + int64(*age)
	}
	return int64(magicNumber)
}

// Select draws req.Count distinct cards. The draw is a pure function of
// (MagicNumber, Age, Count) and the deck order.
func Select(d *deck.Deck, req Request) (Result, error) {
	if d == nil {
		return Result{}, llmerrors.InvalidArgument("deck is nil")
	}
	if req.Count < 1 || req.Count > d.CardCount() {
		return Result{}, llmerrors.InvalidArgument("card count %d outside 1..%d", req.Count, d.CardCount())
	}

	seed := SeedFor(req.MagicNumber, req.Age)
	indices := pyrand.New(seed).Sample(d.CardCount(), req.Count)

	cards := make([]deck.Card, len(indices))
	for i, idx := range indices {
		card, _ := d.Get(idx)
		cards[i] = card
	}

	return Result{Cards: cards, Seed: seed, AgeUsed: req.Age != nil}, nil
}

// Draw is shorthand for Select without a nonce.
func Draw(d *deck.Deck, count, magicNumber int, age *int) (Result, error) {
	return Select(d, Request{Count: count, MagicNumber: magicNumber, Age: age})
}
