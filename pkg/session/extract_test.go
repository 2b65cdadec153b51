package session

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMarkedBlockCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("Вот мои вопросы.\n[QUESTIONS_START]\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "Q%d: Это уточняющий вопрос номер %d?\n", i, i)
	}
	b.WriteString("[QUESTIONS_END]\nСпасибо.")

	got := ExtractQuestions(b.String(), "three_cards")
	assert.Equal(t, []string{
		"Это уточняющий вопрос номер 1?",
		"Это уточняющий вопрос номер 2?",
		"Это уточняющий вопрос номер 3?",
	}, got)
}

func TestExtractCaps(t *testing.T) {
	var b strings.Builder
	b.WriteString("[questions_start]")
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "Q%d: Что вы чувствуете в ситуации %d?", i, i)
	}
	b.WriteString("[questions_end]")
	text := b.String()

	cases := map[string]int{
		"single_card":   2,
		"three_cards":   3,
		"horseshoe":     4,
		"love_triangle": 5,
		"celtic_cross":  7,
		"week_forecast": 4,
		"year_wheel":    5,
		"unknown":       3,
	}
	for spread, want := range cases {
		assert.Len(t, ExtractQuestions(text, spread), want, spread)
	}
	assert.Len(t, ExtractQuestionsN(text, 0), 12)
}

func TestExtractFiltersInvalid(t *testing.T) {
	text := "[QUESTIONS_START]\n" +
		"Q1: Коротко?\n" +
		"Q2: Расскажите о вашей работе подробнее.\n" +
		"Q3: " + strings.Repeat("очень ", 100) + "длинно?\n" +
		"Q4: Что вы хотите изменить в первую очередь?\n" +
		"[QUESTIONS_END]"

	assert.Equal(t, []string{"Что вы хотите изменить в первую очередь?"}, ExtractQuestions(text, "celtic_cross"))
}

func TestExtractMultilineEntry(t *testing.T) {
	text := "[QUESTIONS_START]\nQ1: Как вы относитесь\nк переменам на работе?\nQ2: Кто вас поддерживает сейчас?\n[QUESTIONS_END]"
	got := ExtractQuestions(text, "celtic_cross")
	assert.Equal(t, []string{"Как вы относитесь\nк переменам на работе?", "Кто вас поддерживает сейчас?"}, got)
}

func TestExtractLegacyBlock(t *testing.T) {
	text := "Анализ.\n<QUESTIONS>\n1. Что вас беспокоит больше всего?\nне вопрос\n2. Как давно это длится?\n</QUESTIONS>"
	got := ExtractQuestions(text, "celtic_cross")
	assert.Equal(t, []string{"Что вас беспокоит больше всего?", "Как давно это длится?"}, got)
}

func TestExtractInvalidMarkedBlockFallsThrough(t *testing.T) {
	text := "[QUESTIONS_START]\nQ1: нет\n[QUESTIONS_END]\n<QUESTIONS>\n1. Что вас беспокоит больше всего?\n</QUESTIONS>"
	assert.Equal(t, []string{"Что вас беспокоит больше всего?"}, ExtractQuestions(text, "celtic_cross"))
}

func TestExtractGeneric(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "labelled",
			text: "Вопрос 1: Что для вас сейчас главное?\nВопрос 2: Кто рядом с вами в трудный момент?",
			want: []string{"Что для вас сейчас главное?", "Кто рядом с вами в трудный момент?"},
		},
		{
			name: "english labels",
			text: "Question 1: What matters most right now?",
			want: []string{"What matters most right now?"},
		},
		{
			name: "numbered",
			text: "Несколько вопросов:\n1. Что для вас сейчас главное?\n2) Кто рядом с вами сейчас?\n3. Это не вопрос.",
			want: []string{"Что для вас сейчас главное?", "Кто рядом с вами сейчас?"},
		},
		{
			name: "bullets",
			text: "Уточните:\n- Что для вас сейчас главное?\n• Кто рядом с вами сейчас?\n* Чего вы ждёте от будущего?",
			want: []string{"Что для вас сейчас главное?", "Кто рядом с вами сейчас?", "Чего вы ждёте от будущего?"},
		},
		{
			name: "labelled question ends at its line",
			text: "Вопрос 1: Что для вас сейчас главное?\nВопрос 2: Кто поддерживает вас в этой ситуации?\n\n" +
				"Ответьте, пожалуйста, честно: от этого зависит точность толкования. Я подожду.",
			want: []string{"Что для вас сейчас главное?", "Кто поддерживает вас в этой ситуации?"},
		},
		{
			name: "inline label mention falls through to numbered",
			text: "Обратите внимание на вопрос 1: он важен.\n" +
				"1. Что вы хотите изменить в первую очередь?\n2. Кто рядом с вами сейчас?",
			want: []string{"Что вы хотите изменить в первую очередь?", "Кто рядом с вами сейчас?"},
		},
		{
			name: "labels without valid questions fall through to bullets",
			text: "Вопрос 1: нет\n- Чего вы ждёте от будущего?",
			want: []string{"Чего вы ждёте от будущего?"},
		},
		{
			name: "crlf line endings",
			text: "1. Что для вас сейчас главное?\r\n2. Кто рядом с вами сейчас?\r\n",
			want: []string{"Что для вас сейчас главное?", "Кто рядом с вами сейчас?"},
		},
		{
			name: "none",
			text: "Вопросов нет, всё понятно.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuestions(tt.text, "celtic_cross"))
		})
	}
}
