package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/logx"
)

const (
	minInterpretationLen = 50
	minUniqueWordRatio   = 0.3
	fallbackCards        = 3
)

var (
	// ErrTooShort rejects interpretations under the minimum length.
	ErrTooShort = errors.New("interpretation too short")
	// ErrRepetitive rejects interpretations that mostly repeat the same words.
	ErrRepetitive = errors.New("interpretation too repetitive")
)

var (
	interpretationBlock = regexp.MustCompile(`(?is)\[INTERPRETATION_START\](.*?)\[INTERPRETATION_END\]`)
	markupTag           = regexp.MustCompile(`<[^>]+>`)
	blankRun            = regexp.MustCompile(`\n\s*\n`)
)

// CleanFinal extracts the user-facing text from the final reply. The marked
// block wins; otherwise markup tags are stripped from the whole reply.
func CleanFinal(reply string) string {
	var text string
	if m := interpretationBlock.FindStringSubmatch(reply); m != nil {
		text = m[1]
	} else {
		text = markupTag.ReplaceAllString(reply, "")
	}
	return blankRun.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// Validate rejects texts that are too short or too repetitive. A text that
// names none of the cards is only logged.
func Validate(text string, cards []deck.Card, logger *logx.Logger) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minInterpretationLen {
		return ErrTooShort
	}

	lower := strings.ToLower(text)
	if logger != nil && len(cards) > 0 && !mentionsAnyCard(lower, cards) {
		logger.Warn("Interpretation does not mention any drawn card")
	}

	words := strings.Fields(lower)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if float64(len(unique))/float64(len(words)) < minUniqueWordRatio {
		return fmt.Errorf("%w: %d unique of %d words", ErrRepetitive, len(unique), len(words))
	}
	return nil
}

func mentionsAnyCard(lowerText string, cards []deck.Card) bool {
	for _, c := range cards {
		for _, w := range strings.Fields(strings.ToLower(c.Name)) {
			if strings.Contains(lowerText, w) {
				return true
			}
		}
	}
	return false
}

// Fallback is the templated interpretation used when the model's text is unusable.
func Fallback(name, spreadName string, cards []deck.Card) string {
	if len(cards) == 0 {
		return "🔮 К сожалению, не удалось сгенерировать интерпретацию для вашего расклада. Попробуйте еще раз."
	}
	if name == "" {
		name = DefaultName
	}

	var b strings.Builder
	if spreadName == "" {
		fmt.Fprintf(&b, "🔮 **%s, ваш расклад готов!**\n\n", name)
	} else {
		fmt.Fprintf(&b, "🔮 **%s, ваш расклад «%s» готов!**\n\n", name, spreadName)
	}
	for i, c := range cards {
		if i == fallbackCards {
			break
		}
		fmt.Fprintf(&b, "🎴 **%s** — эта карта символизирует важные изменения в вашей жизни.\n", c.Name)
	}
	b.WriteString("\n✨ Карты показывают период роста и новых возможностей. Доверьтесь интуиции и будьте открыты переменам!")
	return b.String()
}

// Finalize cleans and validates a final reply, falling back when it is unusable.
func Finalize(reply, name, spreadName string, cards []deck.Card, logger *logx.Logger) Outcome {
	text := CleanFinal(reply)
	if err := Validate(text, cards, logger); err != nil {
		if logger != nil {
			logger.Warn("Final interpretation rejected, using fallback: %v", err)
		}
		return Outcome{Text: Fallback(name, spreadName, cards), Raw: reply, FellBack: true}
	}
	return Outcome{Text: text, Raw: reply}
}
