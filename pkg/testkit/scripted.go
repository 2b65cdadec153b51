// Package testkit provides LLM test doubles: a scripted client and a mock completion endpoint.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"tarotbot/pkg/llm"
)

// Reply is one scripted completion outcome.
type Reply struct {
	Err     error
	Content string
}

// ScriptedClient is an llm.Client that plays back replies in order.
// Calls past the end of the script fail.
type ScriptedClient struct {
	model   string
	replies []Reply
	mu      sync.Mutex
	calls   []llm.Request
	stages  []string
}

// NewScriptedClient creates a client that answers with contents in order.
func NewScriptedClient(contents ...string) *ScriptedClient {
	replies := make([]Reply, len(contents))
	for i, c := range contents {
		replies[i] = Reply{Content: c}
	}
	return NewScriptedClientWith(replies...)
}

// NewScriptedClientWith creates a client from explicit replies, errors included.
func NewScriptedClientWith(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{model: "scripted/model", replies: replies}
}

// Complete returns the next scripted reply and records the request.
func (c *ScriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	c.calls = append(c.calls, req)
	c.stages = append(c.stages, llm.StageFrom(ctx))

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	i := len(c.calls) - 1
	if i >= len(c.replies) {
		return llm.Response{}, fmt.Errorf("scripted client: no reply for call %d", i+1)
	}
	r := c.replies[i]
	if r.Err != nil {
		return llm.Response{}, r.Err
	}
	return llm.Response{Content: r.Content, Model: c.model, FinishReason: "stop"}, nil
}

// ModelName returns the scripted model id.
func (c *ScriptedClient) ModelName() string { return c.model }

// Calls returns the recorded requests.
func (c *ScriptedClient) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// Stages returns the stage label of every recorded call.
func (c *ScriptedClient) Stages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.stages))
	copy(out, c.stages)
	return out
}
