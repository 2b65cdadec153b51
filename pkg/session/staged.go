package session

import (
	"context"
	"fmt"

	"tarotbot/pkg/contextmgr"
	"tarotbot/pkg/llm"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/prompts"
)

// Staged runs a reading as one model call per analysis stage over a single
// growing conversation. It is not safe for concurrent use; the dialogue layer
// serializes events per chat.
type Staged struct {
	client    llm.Client
	prompts   *prompts.Provider
	conv      *contextmgr.ConversationContext
	logger    *logx.Logger
	input     Input
	questions []string
	opts      Options
	stage     Stage
}

// NewStaged creates a staged interpreter.
func NewStaged(client llm.Client, p *prompts.Provider, opts Options) *Staged {
	return &Staged{
		client:  client,
		prompts: p,
		opts:    opts,
		logger:  logx.NewLogger("session"),
		conv:    contextmgr.NewConversationContext(""),
	}
}

// Stage reports the current stage.
func (s *Staged) Stage() Stage { return s.stage }

// History returns a copy of the conversation so far.
func (s *Staged) History() []llm.Message { return s.conv.History() }

// Questions returns the clarifying questions extracted by Begin.
func (s *Staged) Questions() []string { return append([]string(nil), s.questions...) }

// Snapshot serializes the conversation.
func (s *Staged) Snapshot() ([]byte, error) { return s.conv.Snapshot() }

// Begin runs the stages up to and including question generation.
func (s *Staged) Begin(ctx context.Context, in Input) ([]string, error) {
	if s.stage != StageNew {
		return nil, orderError("Begin", s.stage)
	}
	s.input = in.normalized()

	persona, err := s.prompts.SystemPersona(s.input.Name, s.input.Age, s.input.Now)
	if err != nil {
		return nil, s.fail(StageInitialize, err)
	}
	s.conv = contextmgr.NewConversationContext(persona)
	s.stage = StageInitialize

	spreadContext, err := s.prompts.SpreadContext(s.input.Spread.Key, s.input.Cards, s.input.Spread.Positions)
	if err != nil {
		return nil, s.fail(StageSpreadContext, err)
	}
	s.conv.AddUser(spreadContext)
	s.stage = StageSpreadContext

	if len(s.input.PreliminaryAnswers) > 0 {
		pairs := prompts.Pair(s.input.PreliminaryQuestions, s.input.PreliminaryAnswers)
		s.conv.AddUser(s.prompts.PreliminaryAnswers(pairs))
		s.stage = StagePreliminaryAnswers
	}

	instruction, err := s.prompts.ClarifyingQuestions(s.input.PreliminaryAnswers)
	if err != nil {
		return nil, s.fail(StageQuestionsGeneration, err)
	}
	reply, err := s.exchange(ctx, StageQuestionsGeneration, instruction)
	if err != nil {
		return nil, err
	}

	limit := s.input.Spread.QuestionCap
	if limit < 1 {
		limit = CapFor(s.input.Spread.Key)
	}
	s.questions = ExtractQuestionsN(reply, limit)
	if len(s.questions) == 0 {
		s.logger.Warn("No clarifying questions extracted for %s", s.input.Spread.Key)
	} else {
		s.logger.Info("Extracted %d clarifying questions for %s", len(s.questions), s.input.Spread.Key)
	}
	return s.Questions(), nil
}

// Finish integrates the answers and runs the remaining stages. The final reply
// is cleaned and validated but never appended to the conversation.
func (s *Staged) Finish(ctx context.Context, answers []string) (Outcome, error) {
	if s.stage != StageQuestionsGeneration {
		return Outcome{}, orderError("Finish", s.stage)
	}

	if len(s.questions) > 0 && len(answers) > 0 {
		s.conv.AddUser(s.prompts.ClarifyingAnswers(prompts.Pair(s.questions, answers)))
		s.stage = StageAnswersIntegration
	}

	steps := []struct {
		render func() (string, error)
		stage  Stage
	}{
		{s.prompts.ContextAnalysis, StageContextAnalysis},
		{s.prompts.Synthesis, StageSynthesis},
	}
	for _, step := range steps {
		instruction, err := step.render()
		if err != nil {
			return Outcome{}, s.fail(step.stage, err)
		}
		if _, err := s.exchange(ctx, step.stage, instruction); err != nil {
			return Outcome{}, err
		}
	}

	instruction, err := s.prompts.FinalResponse()
	if err != nil {
		return Outcome{}, s.fail(StageFinalResponse, err)
	}
	s.conv.AddUser(instruction)
	reply, err := s.call(ctx, StageFinalResponse)
	if err != nil {
		return Outcome{}, err
	}
	s.stage = StageFinalResponse
	s.opts.completed(StageFinalResponse)

	return Finalize(reply, s.input.Name, s.input.Spread.Name, s.input.Cards, s.logger), nil
}

// exchange appends an instruction, calls the model and appends its reply.
func (s *Staged) exchange(ctx context.Context, stage Stage, instruction string) (string, error) {
	s.conv.AddUser(instruction)
	reply, err := s.call(ctx, stage)
	if err != nil {
		return "", err
	}
	s.conv.AddAssistant(reply)
	s.stage = stage
	s.opts.completed(stage)
	return reply, nil
}

func (s *Staged) call(ctx context.Context, stage Stage) (string, error) {
	logx.Debug(ctx, "session", "stage %s: sending %d messages", stage, s.conv.Len())
	resp, err := s.client.Complete(llm.WithStage(ctx, stage.String()), s.opts.request(s.conv.History()))
	if err != nil {
		return "", s.fail(stage, err)
	}
	return resp.Content, nil
}

func (s *Staged) fail(stage Stage, err error) error {
	s.stage = StageFailed
	s.logger.Error("Stage %s failed: %v", stage, err)
	return fmt.Errorf("stage %s: %w", stage, err)
}
