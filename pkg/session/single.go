package session

import (
	"context"
	"fmt"

	"tarotbot/pkg/contextmgr"
	"tarotbot/pkg/llm"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/prompts"
)

// SingleCall produces the whole reading in one model call. It never asks
// clarifying questions.
type SingleCall struct {
	client  llm.Client
	prompts *prompts.Provider
	conv    *contextmgr.ConversationContext
	logger  *logx.Logger
	input   Input
	opts    Options
	stage   Stage
}

// NewSingleCall creates a single-call interpreter.
func NewSingleCall(client llm.Client, p *prompts.Provider, opts Options) *SingleCall {
	return &SingleCall{
		client:  client,
		prompts: p,
		opts:    opts,
		logger:  logx.NewLogger("session"),
		conv:    contextmgr.NewConversationContext(""),
	}
}

// Stage reports the current stage.
func (s *SingleCall) Stage() Stage { return s.stage }

// Snapshot serializes the conversation.
func (s *SingleCall) Snapshot() ([]byte, error) { return s.conv.Snapshot() }

// Begin builds the complete context. It makes no call and returns no questions.
func (s *SingleCall) Begin(_ context.Context, in Input) ([]string, error) {
	if s.stage != StageNew {
		return nil, orderError("Begin", s.stage)
	}
	s.input = in.normalized()

	persona, err := s.prompts.SystemPersona(s.input.Name, s.input.Age, s.input.Now)
	if err != nil {
		return nil, s.fail(StageInitialize, err)
	}
	s.conv = contextmgr.NewConversationContext(persona)

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
	return nil, nil
}

// Finish makes the single call. Answers are ignored; Begin never asks questions.
func (s *SingleCall) Finish(ctx context.Context, answers []string) (Outcome, error) {
	if s.stage != StageSpreadContext && s.stage != StagePreliminaryAnswers {
		return Outcome{}, orderError("Finish", s.stage)
	}
	if len(answers) > 0 {
		s.logger.Warn("Ignoring %d answers in single-call reading", len(answers))
	}

	instruction, err := s.prompts.SingleCall()
	if err != nil {
		return Outcome{}, s.fail(StageFinalResponse, err)
	}
	s.conv.AddUser(instruction)

	resp, err := s.client.Complete(llm.WithStage(ctx, StageFinalResponse.String()), s.opts.request(s.conv.History()))
	if err != nil {
		return Outcome{}, s.fail(StageFinalResponse, err)
	}
	s.stage = StageFinalResponse
	s.opts.completed(StageFinalResponse)

	return Finalize(resp.Content, s.input.Name, s.input.Spread.Name, s.input.Cards, s.logger), nil
}

func (s *SingleCall) fail(stage Stage, err error) error {
	s.stage = StageFailed
	s.logger.Error("Single-call stage %s failed: %v", stage, err)
	return fmt.Errorf("stage %s: %w", stage, err)
}
