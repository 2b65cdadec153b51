// Package session runs the LLM side of a tarot reading: the staged conversation that turns a
// spread into clarifying questions and a final interpretation.
package session

import (
	"context"
	"fmt"
	"time"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/llm"
	"tarotbot/pkg/prompts"
	"tarotbot/pkg/spreads"
)

const (
	// DefaultName addresses a user whose name is unknown.
	DefaultName = "Друг"
	// DefaultAge is assumed when the age is unknown.
	DefaultAge = 25
)

// Strategy names accepted by New.
const (
	StrategyStaged = "staged"
	StrategySingle = "single"
)

// Input is everything a reading needs from the dialogue.
type Input struct {
	Now                  time.Time
	Name                 string
	Spread               spreads.Spread
	Cards                []deck.Card
	PreliminaryQuestions []string
	PreliminaryAnswers   []string
	Age                  int
}

func (in Input) normalized() Input {
	if in.Name == "" {
		in.Name = DefaultName
	}
	if in.Age <= 0 {
		in.Age = DefaultAge
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	return in
}

// Outcome is the text delivered to the user. FellBack is set when the model's
// reply failed validation and the templated fallback was used instead.
type Outcome struct {
	Text     string
	Raw      string
	FellBack bool
}

// Interpreter produces a reading in two steps around the user's answers to
// clarifying questions.
type Interpreter interface {
	// Begin builds the reading context and returns clarifying questions, possibly none.
	Begin(ctx context.Context, in Input) ([]string, error)
	// Finish integrates answers and returns the final interpretation.
	Finish(ctx context.Context, answers []string) (Outcome, error)
	// Stage reports the current stage.
	Stage() Stage
	// Snapshot serializes the conversation for the reading log.
	Snapshot() ([]byte, error)
}

// Options are generation settings shared by every call of a reading.
type Options struct {
	// OnStage, when set, is called after every successful model call with the stage it completed.
	OnStage     func(Stage)
	Model       string
	MaxTokens   int
	Temperature float64
}

func (o Options) completed(stage Stage) {
	if o.OnStage != nil {
		o.OnStage(stage)
	}
}

func (o Options) request(msgs []llm.Message) llm.Request {
	req := llm.NewRequest(msgs)
	req.Model = o.Model
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if o.Temperature > 0 {
		req.Temperature = o.Temperature
	}
	return req
}

// New returns an interpreter for the named strategy.
func New(strategy string, client llm.Client, p *prompts.Provider, opts Options) (Interpreter, error) {
	switch strategy {
	case StrategyStaged, "":
		return NewStaged(client, p, opts), nil
	case StrategySingle:
		return NewSingleCall(client, p, opts), nil
	default:
		return nil, fmt.Errorf("unknown interpretation strategy %q", strategy)
	}
}
