package session

import (
	"errors"
	"fmt"
)

// Stage is the position of a reading in its pipeline. Stages only move forward.
type Stage int

const (
	StageNew Stage = iota
	StageInitialize
	StageSpreadContext
	StagePreliminaryAnswers
	StageQuestionsGeneration
	StageAnswersIntegration
	StageContextAnalysis
	StageSynthesis
	StageFinalResponse
	StageFailed
)

var stageNames = [...]string{
	StageNew:                 "new",
	StageInitialize:          "initialize",
	StageSpreadContext:       "spread_context",
	StagePreliminaryAnswers:  "preliminary_answers",
	StageQuestionsGeneration: "questions_generation",
	StageAnswersIntegration:  "answers_integration",
	StageContextAnalysis:     "context_analysis",
	StageSynthesis:           "synthesis",
	StageFinalResponse:       "final_response",
	StageFailed:              "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrStageOrder is returned when an operation is called in the wrong stage.
var ErrStageOrder = errors.New("stage called out of order")

func orderError(op string, current Stage) error {
	return fmt.Errorf("%w: %s in stage %s", ErrStageOrder, op, current)
}
