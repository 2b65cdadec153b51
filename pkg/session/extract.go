package session

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minQuestionLen = 10
	maxQuestionLen = 500
)

var defaultCaps = map[string]int{
	"single_card":   2,
	"three_cards":   3,
	"horseshoe":     4,
	"love_triangle": 5,
	"celtic_cross":  7,
	"week_forecast": 4,
	"year_wheel":    5,
}

// fallbackCap applies to spread types missing from defaultCaps.
const fallbackCap = 3

// CapFor returns the built-in clarifying question cap for a spread type.
func CapFor(spreadType string) int {
	if n, ok := defaultCaps[spreadType]; ok {
		return n
	}
	return fallbackCap
}

var (
	questionsBlock = regexp.MustCompile(`(?is)\[QUESTIONS_START\](.*?)\[QUESTIONS_END\]`)
	qMarker        = regexp.MustCompile(`Q\d+:`)
	legacyBlock    = regexp.MustCompile(`(?s)<QUESTIONS>(.*?)</QUESTIONS>`)
	numberedPrefix = regexp.MustCompile(`^\d+\.\s*`)
	labelledLine   = regexp.MustCompile(`(?mi)^[ \t]*(?:Вопрос|Question)[ \t]+\d+:[ \t]*(.+)$`)
	numberedLine   = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]*(.+\?)[ \t\r]*$`)
	bulletLine     = regexp.MustCompile(`(?m)^[ \t]*[-•*][ \t]*(.+\?)[ \t\r]*$`)
)

// questionParser returns candidate questions, or nil when its format is absent.
type questionParser func(text string) []string

// questionParsers are tried in order; the first one producing valid questions wins.
var questionParsers = []questionParser{
	parseMarkedBlock,
	parseLegacyBlock,
	lineParser(labelledLine),
	lineParser(numberedLine),
	lineParser(bulletLine),
}

// ExtractQuestions pulls clarifying questions out of a model reply and applies
// the built-in cap for spreadType.
func ExtractQuestions(text, spreadType string) []string {
	return ExtractQuestionsN(text, CapFor(spreadType))
}

// ExtractQuestionsN pulls at most limit clarifying questions out of a model reply.
// Surplus questions are dropped, never reported as an error.
func ExtractQuestionsN(text string, limit int) []string {
	for _, parse := range questionParsers {
		var valid []string
		for _, q := range parse(text) {
			q = strings.TrimSpace(q)
			if validQuestion(q) {
				valid = append(valid, q)
			}
		}
		if len(valid) > 0 {
			if limit > 0 && len(valid) > limit {
				valid = valid[:limit]
			}
			return valid
		}
	}
	return nil
}

func validQuestion(q string) bool {
	n := utf8.RuneCountInString(q)
	return n >= minQuestionLen && n <= maxQuestionLen && strings.Contains(q, "?")
}

// splitOnMarkers returns the text between consecutive marker matches, and after the last one.
func splitOnMarkers(text string, marker *regexp.Regexp) []string {
	locs := marker.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, text[loc[1]:end])
	}
	return out
}

// parseMarkedBlock reads "Q1: ..." entries between [QUESTIONS_START] and [QUESTIONS_END].
// An entry may span several lines.
func parseMarkedBlock(text string) []string {
	m := questionsBlock.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return splitOnMarkers(strings.TrimSpace(m[1]), qMarker)
}

// parseLegacyBlock reads "1. ..." lines inside <QUESTIONS></QUESTIONS>.
func parseLegacyBlock(text string) []string {
	m := legacyBlock.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		if loc := numberedPrefix.FindStringIndex(line); loc != nil {
			out = append(out, line[loc[1]:])
		}
	}
	return out
}

// lineParser returns the first capture group of every line matching re. Each
// question ends at its line, so prose around the list never leaks into it.
func lineParser(re *regexp.Regexp) questionParser {
	return func(text string) []string {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return nil
		}
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = m[1]
		}
		return out
	}
}
