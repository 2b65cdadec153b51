package readinglog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.October, 14, 9, 30, 5, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "readings"))
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func newRecord(chatID int64, spread string) *Record {
	return &Record{
		Metadata: Metadata{ChatID: chatID},
		User:     User{Name: "Анна", Birthdate: "1992-03-15", Age: 34},
		Spread: Spread{
			Type:        spread,
			Name:        "На три карты",
			MagicNumber: 777,
			Seed:        811,
			AgeUsed:     true,
			Cards:       []string{"Справедливость", "Туз Жезлов", "Тройка Пентаклей"},
			Positions:   []string{"Прошлое", "Настоящее", "Будущее"},
		},
	}
}

func TestCreateWritesNamedFile(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(newRecord(42, "three_cards"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	path := filepath.Join(s.Dir(), "20261014_093005_42_three_cards.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reading_id": "`+id+`"`)
	assert.Contains(t, string(data), `"status": "started"`)
	assert.Contains(t, string(data), `"magic_number": 777`)

	// A second reading in the same second does not overwrite the first.
	id2, err := s.Create(newRecord(42, "three_cards"))
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLifecycle(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(newRecord(1, "three_cards"))
	require.NoError(t, err)

	start := fixedNow
	require.NoError(t, s.Update(id, func(r *Record) error {
		r.StartProcessing("openai/gpt-4o", "staged", start)
		r.UsePrompt("system_persona")
		r.Questions.LLMGenerated = []QA{{Question: "Что важно?", Answer: "Семья"}}
		return nil
	}))
	require.NoError(t, s.Update(id, func(r *Record) error {
		r.Complete("🔮 Текст расклада", false, start.Add(12*time.Second))
		r.LLM.Conversation = []byte(`[{"role":"user","content":"x"}]`)
		return nil
	}))
	require.NoError(t, s.Update(id, func(r *Record) error {
		r.Rate(5, start.Add(time.Minute))
		return nil
	}))
	require.NoError(t, s.Update(id, func(r *Record) error {
		r.Comment("Очень точно", start.Add(2*time.Minute))
		return nil
	}))

	r, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFeedbackReceived, r.Metadata.Status)
	assert.Equal(t, "staged", r.LLM.Strategy)
	assert.Equal(t, []string{"system_persona"}, r.LLM.PromptsUsed)
	assert.InDelta(t, 12.0, r.LLM.GenerationTimeSeconds, 1e-9)
	require.NotNil(t, r.Interpretation)
	assert.Equal(t, 16, r.Interpretation.Length)
	require.NotNil(t, r.Feedback)
	assert.Equal(t, 5, r.Feedback.Rating)
	assert.Equal(t, "Очень точно", r.Feedback.Comment)
	assert.JSONEq(t, `[{"role":"user","content":"x"}]`, string(r.LLM.Conversation))
}

func TestUpdateRejectsBackwardTransition(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(newRecord(1, "single_card"))
	require.NoError(t, err)

	require.NoError(t, s.Update(id, func(r *Record) error {
		r.Fail("questions_generation", errors.New("rate limited"), fixedNow)
		return nil
	}))

	err = s.Update(id, func(r *Record) error {
		r.Metadata.Status = StatusCompleted
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	r, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, r.Metadata.Status)
	require.Len(t, r.LLM.Errors, 1)
	assert.Equal(t, "questions_generation", r.LLM.Errors[0].Stage)
}

func TestUpdateCallbackError(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(newRecord(1, "single_card"))
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, s.Update(id, func(*Record) error { return boom }), boom)
	assert.ErrorIs(t, s.Update("missing", func(*Record) error { return nil }), ErrNotFound)
}

func TestGetAfterRestart(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(newRecord(3, "horseshoe"))
	require.NoError(t, err)

	reopened, err := NewStore(s.Dir())
	require.NoError(t, err)
	r, err := reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Metadata.ChatID)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusStarted, StatusLLMProcessing, true},
		{StatusStarted, StatusError, true},
		{StatusStarted, StatusCompleted, false},
		{StatusLLMProcessing, StatusCompleted, true},
		{StatusCompleted, StatusFeedbackReceived, true},
		{StatusCompleted, StatusError, false},
		{StatusFeedbackReceived, StatusFeedbackReceived, true},
		{StatusError, StatusStarted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	for _, spread := range []string{"three_cards", "three_cards", "celtic_cross"} {
		id, err := s.Create(newRecord(1, spread))
		require.NoError(t, err)
		if spread == "celtic_cross" {
			continue
		}
		require.NoError(t, s.Update(id, func(r *Record) error {
			r.StartProcessing("m", "staged", fixedNow)
			r.Complete("текст", false, fixedNow)
			return nil
		}))
	}
	ids := []string{}
	require.NoError(t, s.each(func(_ string, r *Record) {
		if r.Metadata.Status == StatusCompleted {
			ids = append(ids, r.Metadata.ReadingID)
		}
	}))
	require.Len(t, ids, 2)
	require.NoError(t, s.Update(ids[0], func(r *Record) error { r.Rate(4, fixedNow); return nil }))
	require.NoError(t, s.Update(ids[1], func(r *Record) error { r.Rate(5, fixedNow); return nil }))

	// Garbage in the directory is skipped.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{"), 0o644))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, map[Status]int{StatusFeedbackReceived: 2, StatusStarted: 1}, st.ByStatus)
	assert.Equal(t, map[string]int{"three_cards": 2, "celtic_cross": 1}, st.BySpread)
	assert.Equal(t, 2, st.Rated)
	assert.InDelta(t, 4.5, st.AverageRating, 1e-9)
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)

	s.now = func() time.Time { return fixedNow.Add(-40 * 24 * time.Hour) }
	oldID, err := s.Create(newRecord(1, "single_card"))
	require.NoError(t, err)

	s.now = func() time.Time { return fixedNow }
	newID, err := s.Create(newRecord(2, "single_card"))
	require.NoError(t, err)

	removed, err := s.Cleanup(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(oldID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(newID)
	assert.NoError(t, err)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}
