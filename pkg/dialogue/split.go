package dialogue

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage cuts text into parts of at most max characters. It keeps whole
// paragraphs together where it can, then whole sentences, and only cuts inside
// a sentence that alone exceeds max.
func SplitMessage(text string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var (
		parts []string
		cur   string
	)
	flush := func() {
		if cur != "" {
			parts = append(parts, cur)
			cur = ""
		}
	}
	add := func(piece, sep string) bool {
		if cur == "" {
			if utf8.RuneCountInString(piece) > max {
				return false
			}
			cur = piece
			return true
		}
		if utf8.RuneCountInString(cur)+utf8.RuneCountInString(piece)+utf8.RuneCountInString(sep) > max {
			return false
		}
		cur += sep + piece
		return true
	}

	for _, para := range strings.Split(text, "\n\n") {
		if add(para, "\n\n") {
			continue
		}
		flush()
		if add(para, "\n\n") {
			continue
		}
		for _, sentence := range strings.Split(para, ". ") {
			if add(sentence, ". ") {
				continue
			}
			flush()
			if add(sentence, ". ") {
				continue
			}
			chunks := hardSplit(sentence, max)
			parts = append(parts, chunks[:len(chunks)-1]...)
			cur = chunks[len(chunks)-1]
		}
		flush()
	}
	flush()
	return parts
}

func hardSplit(s string, max int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	return append(out, string(runes))
}
