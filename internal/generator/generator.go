// Package generator implements the downstream generation step of the askdoc
// pipeline: it turns an assembled retrieval context plus a user question into
// a grounded natural-language answer via an eino chat model.
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/askdoc/askdoc-go/internal/budget"
	"github.com/askdoc/askdoc-go/internal/logging"
	"github.com/askdoc/askdoc-go/internal/rag"
)

// systemPrompt instructs the model to answer strictly from the retrieved
// context and to attribute claims to the tagged sources.
const systemPrompt = `You are askdoc, a document question-answering assistant.

Answer the user's question using ONLY the provided context. The context is a
sequence of excerpts, each introduced by a provenance tag of the form
[source: document | position]. Rules:

- Base every statement on the context. Never draw on outside knowledge.
- When you state a fact, name the document it came from, e.g. "(handbook)".
- If the context does not contain the answer, say so plainly: "The indexed
  documents do not contain an answer to this question." Do not guess.
- Keep answers concise and direct. Quote exact figures and dates verbatim.`

// noContextAnswer is returned without a model call when retrieval produced an
// empty context.
const noContextAnswer = "The indexed documents do not contain an answer to this question."

// Answer is the result of one generation call.
type Answer struct {
	// Text is the model's answer.
	Text string
	// PromptTokens is the token count of the input, model-reported when
	// available and budget-estimated otherwise.
	PromptTokens int
	// CompletionTokens is the token count of the answer.
	CompletionTokens int
	// Estimated is true when the token counts came from the character
	// heuristic rather than the model's usage report.
	Estimated bool
}

// Config holds the dependencies for constructing a Generator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel
	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + history + context + question). History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Generator produces answers from assembled retrieval contexts.
type Generator struct {
	model            model.ToolCallingChatModel
	maxContextTokens int
}

// New constructs a Generator from the provided Config.
func New(cfg *Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("generator: ChatModel must not be nil")
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Generator{model: cfg.ChatModel, maxContextTokens: maxCtx}, nil
}

// Generate answers the question from the assembled context. history carries
// optional prior conversation turns, trimmed oldest-first to fit the token
// budget. An empty context short-circuits to a fixed "not found" answer with
// no model call, so callers never pay for a generation that cannot be
// grounded.
func (g *Generator) Generate(ctx context.Context, question string, assembled rag.AssembledContext, history []*schema.Message) (Answer, error) {
	if assembled.Text == "" {
		return Answer{Text: noContextAnswer, Estimated: true}, nil
	}

	messages := g.buildMessages(ctx, question, assembled, history)

	out, err := g.model.Generate(ctx, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("generator: generate: %w", err)
	}

	ans := Answer{Text: out.Content}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		ans.PromptTokens = out.ResponseMeta.Usage.PromptTokens
		ans.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
	} else {
		ans.PromptTokens = budget.EstimateMessages(messages)
		ans.CompletionTokens = budget.Estimate(out.Content)
		ans.Estimated = true
	}
	return ans, nil
}

// buildMessages constructs the message slice: system prompt, trimmed history,
// the context as a second system message, then the question.
func (g *Generator) buildMessages(ctx context.Context, question string, assembled rag.AssembledContext, history []*schema.Message) []*schema.Message {
	contextMsg := schema.SystemMessage("## Context\n\n" + assembled.Text)

	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		contextMsg,
		schema.UserMessage(question),
	}

	before := len(history)
	history = budget.TrimHistory(fixed, history, g.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	messages := make([]*schema.Message, 0, 3+len(history))
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, contextMsg)
	messages = append(messages, schema.UserMessage(question))
	return messages
}
