package readinglog

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a reading.
type Status string

const (
	StatusStarted          Status = "started"
	StatusLLMProcessing    Status = "llm_processing"
	StatusCompleted        Status = "completed"
	StatusFeedbackReceived Status = "feedback_received"
	StatusError            Status = "error"
)

var transitions = map[Status][]Status{
	StatusStarted:          {StatusLLMProcessing, StatusError},
	StatusLLMProcessing:    {StatusCompleted, StatusError},
	StatusCompleted:        {StatusFeedbackReceived},
	StatusFeedbackReceived: {},
	StatusError:            {},
}

// CanTransition reports whether a reading may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is everything logged about one reading.
type Record struct {
	Feedback       *Feedback       `json:"feedback,omitempty"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
	User           User            `json:"user"`
	Metadata       Metadata        `json:"metadata"`
	Spread         Spread          `json:"spread"`
	Questions      Questions       `json:"questions"`
	LLM            Processing      `json:"llm_processing"`
}

type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	ReadingID string    `json:"reading_id"`
	Status    Status    `json:"status"`
	ChatID    int64     `json:"chat_id"`
}

type User struct {
	Name      string `json:"name"`
	Birthdate string `json:"birthdate"`
	Age       int    `json:"age"`
}

type Spread struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Cards       []string `json:"cards"`
	Positions   []string `json:"positions"`
	Seed        int64    `json:"seed"`
	MagicNumber int      `json:"magic_number"`
	AgeUsed     bool     `json:"age_used"`
}

// QA is a question with the user's answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Questions struct {
	Preliminary  []QA `json:"preliminary"`
	LLMGenerated []QA `json:"llm_generated"`
}

type StageError struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
}

type Processing struct {
	StartTime             *time.Time      `json:"start_time,omitempty"`
	EndTime               *time.Time      `json:"end_time,omitempty"`
	Model                 string          `json:"model"`
	Strategy              string          `json:"strategy"`
	Conversation          json.RawMessage `json:"conversation,omitempty"`
	PromptsUsed           []string        `json:"prompts_used"`
	Errors                []StageError    `json:"errors"`
	GenerationTimeSeconds float64         `json:"generation_time_seconds"`
}

type Interpretation struct {
	DeliveryTime time.Time `json:"delivery_time"`
	Text         string    `json:"text"`
	Length       int       `json:"length"`
	FellBack     bool      `json:"fell_back"`
}

type Feedback struct {
	FeedbackTime time.Time `json:"feedback_time"`
	Comment      string    `json:"comment,omitempty"`
	Rating       int       `json:"rating"`
}

// StartProcessing marks the start of model work.
func (r *Record) StartProcessing(model, strategy string, now time.Time) {
	r.Metadata.Status = StatusLLMProcessing
	r.LLM.Model = model
	r.LLM.Strategy = strategy
	r.LLM.StartTime = &now
}

// UsePrompt records a prompt template that went into the conversation.
func (r *Record) UsePrompt(name string) {
	r.LLM.PromptsUsed = append(r.LLM.PromptsUsed, name)
}

// Fail records a stage error and moves the reading to the error status.
func (r *Record) Fail(stage string, err error, now time.Time) {
	r.LLM.Errors = append(r.LLM.Errors, StageError{Timestamp: now, Stage: stage, Error: err.Error()})
	r.Metadata.Status = StatusError
	r.finishProcessing(now)
}

// Complete records the delivered interpretation.
func (r *Record) Complete(text string, fellBack bool, now time.Time) {
	r.Interpretation = &Interpretation{
		Text:         text,
		Length:       len([]rune(text)),
		FellBack:     fellBack,
		DeliveryTime: now,
	}
	r.Metadata.Status = StatusCompleted
	r.finishProcessing(now)
}

// Rate records a 1..5 rating.
func (r *Record) Rate(rating int, now time.Time) {
	if r.Feedback == nil {
		r.Feedback = &Feedback{}
	}
	r.Feedback.Rating = rating
	r.Feedback.FeedbackTime = now
	r.Metadata.Status = StatusFeedbackReceived
}

// Comment attaches a free-text comment to the feedback.
func (r *Record) Comment(text string, now time.Time) {
	if r.Feedback == nil {
		r.Feedback = &Feedback{}
	}
	r.Feedback.Comment = text
	r.Feedback.FeedbackTime = now
}

func (r *Record) finishProcessing(now time.Time) {
	if r.LLM.StartTime == nil {
		return
	}
	r.LLM.EndTime = &now
	r.LLM.GenerationTimeSeconds = now.Sub(*r.LLM.StartTime).Seconds()
}
