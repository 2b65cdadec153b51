// Package prompts renders the stage prompts of a tarot reading from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
	"time"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/spreads"
)

//go:embed templates/*.tpl.md templates/spreads/*.tpl.md
var templateFS embed.FS

// Template names a prompt template file under templates/.
type Template string

const (
	// PersonaTemplate introduces the reader persona and the user.
	PersonaTemplate Template = "system_persona.tpl.md"
	// QuestionsTemplate asks for clarifying questions.
	QuestionsTemplate Template = "clarifying_questions.tpl.md"
	// ContextAnalysisTemplate asks for a card-by-card analysis.
	ContextAnalysisTemplate Template = "context_analysis.tpl.md"
	// SynthesisTemplate asks for the story plan.
	SynthesisTemplate Template = "synthesis.tpl.md"
	// FinalResponseTemplate asks for the user-facing interpretation.
	FinalResponseTemplate Template = "final_response.tpl.md"
	// SingleCallTemplate asks for the whole interpretation in one reply.
	SingleCallTemplate Template = "single_call.tpl.md"
)

// SpreadTemplate returns the context template name for a spread key.
func SpreadTemplate(key string) Template {
	return Template("spreads/" + key + ".tpl.md")
}

const (
	cardsHeading       = "## ВЫПАВШИЕ КАРТЫ В ВАШЕМ РАСКЛАДЕ"
	preliminaryHeading = "ПРЕДВАРИТЕЛЬНЫЕ ОТВЕТЫ ПОЛЬЗОВАТЕЛЯ:"
	clarifyingHeading  = "ОТВЕТЫ НА УТОЧНЯЮЩИЕ ВОПРОСЫ:"
)

// QA is one question with the user's answer.
type QA struct {
	Question string
	Answer   string
}

// Pair zips questions and answers. Answers without a matching question keep an empty question.
func Pair(questions, answers []string) []QA {
	out := make([]QA, len(answers))
	for i, a := range answers {
		out[i].Answer = a
		if i < len(questions) {
			out[i].Question = questions[i]
		}
	}
	return out
}

// Provider renders stage prompts.
type Provider struct {
	templates map[Template]*template.Template
	catalog   *spreads.Catalog
}

// NewProvider loads the embedded templates for every spread in catalog.
func NewProvider(catalog *spreads.Catalog) (*Provider, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded templates: %w", err)
	}
	return NewProviderFS(sub, catalog)
}

// NewProviderFS loads templates from fsys. A missing template is an error.
func NewProviderFS(fsys fs.FS, catalog *spreads.Catalog) (*Provider, error) {
	if catalog == nil {
		return nil, fmt.Errorf("spread catalog is required")
	}

	names := []Template{
		PersonaTemplate,
		QuestionsTemplate,
		ContextAnalysisTemplate,
		SynthesisTemplate,
		FinalResponseTemplate,
		SingleCallTemplate,
	}
	for _, s := range catalog.All() {
		names = append(names, SpreadTemplate(s.Key))
	}

	p := &Provider{
		templates: make(map[Template]*template.Template, len(names)),
		catalog:   catalog,
	}
	funcs := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}
	for _, name := range names {
		content, err := fs.ReadFile(fsys, string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Funcs(funcs).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

func (p *Provider) render(name Template, data any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SystemPersona renders the persona prompt for a user.
func (p *Provider) SystemPersona(name string, age int, now time.Time) (string, error) {
	return p.render(PersonaTemplate, struct {
		Name string
		Date string
		Age  int
	}{Name: name, Age: age, Date: RussianDate(now)})
}

// SpreadContext renders the spread description followed by one block per drawn card.
// Positions past the end of the slice are numbered.
func (p *Provider) SpreadContext(spreadType string, cards []deck.Card, positions []string) (string, error) {
	spread, ok := p.catalog.ByKey(spreadType)
	if !ok {
		return "", fmt.Errorf("unknown spread type %q", spreadType)
	}
	intro, err := p.render(SpreadTemplate(spreadType), spread)
	if err != nil {
		return "", err
	}
	return intro + "\n\n" + cardsHeading + "\n\n" + FormatCards(cards, positions), nil
}

// FormatCards renders the per-card blocks of a spread context.
func FormatCards(cards []deck.Card, positions []string) string {
	blocks := make([]string, 0, len(cards))
	for i, c := range cards {
		position := fmt.Sprintf("Позиция %d", i+1)
		if i < len(positions) && positions[i] != "" {
			position = positions[i]
		}
		m := c.Meanings()
		blocks = append(blocks, fmt.Sprintf("**%s: %s**\n• Предсказания: %s\n• Ключевые слова: %s\n• Светлые аспекты: %s\n• Теневые аспекты: %s",
			position, c.Name,
			strings.Join(c.FortuneTelling(), " • "),
			strings.Join(c.Keywords(), ", "),
			strings.Join(firstN(m.Light, 3), " • "),
			strings.Join(firstN(m.Shadow, 3), " • "),
		))
	}
	return strings.Join(blocks, "\n\n")
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// AnswersBlock formats question/answer pairs as numbered entries.
func AnswersBlock(pairs []QA) string {
	lines := make([]string, 0, 3*len(pairs))
	for i, qa := range pairs {
		lines = append(lines,
			fmt.Sprintf("Вопрос %d: %s", i+1, qa.Question),
			"Ответ: "+qa.Answer,
			"")
	}
	return strings.Join(lines, "\n")
}

// PreliminaryAnswers formats the answers given before the draw.
func (p *Provider) PreliminaryAnswers(pairs []QA) string {
	return preliminaryHeading + "\n" + AnswersBlock(pairs)
}

// ClarifyingAnswers formats the answers to the model's clarifying questions.
func (p *Provider) ClarifyingAnswers(pairs []QA) string {
	return clarifyingHeading + "\n" + AnswersBlock(pairs)
}

// ClarifyingQuestions renders the instruction that asks for clarifying questions.
// Prior answers, when present, are listed after the instruction.
func (p *Provider) ClarifyingQuestions(priorAnswers []string) (string, error) {
	return p.render(QuestionsTemplate, struct{ Answers []string }{Answers: priorAnswers})
}

// ContextAnalysis renders the card analysis instruction.
func (p *Provider) ContextAnalysis() (string, error) {
	return p.render(ContextAnalysisTemplate, nil)
}

// Synthesis renders the story planning instruction.
func (p *Provider) Synthesis() (string, error) {
	return p.render(SynthesisTemplate, nil)
}

// FinalResponse renders the user-facing interpretation instruction.
func (p *Provider) FinalResponse() (string, error) {
	return p.render(FinalResponseTemplate, nil)
}

// SingleCall renders the instruction for a reading produced in one reply.
func (p *Provider) SingleCall() (string, error) {
	return p.render(SingleCallTemplate, nil)
}

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// RussianDate formats t as "14 октября 2026 года".
func RussianDate(t time.Time) string {
	return fmt.Sprintf("%02d %s %d года", t.Day(), monthsGenitive[t.Month()-1], t.Year())
}
