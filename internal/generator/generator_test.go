package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/askdoc/askdoc-go/internal/rag"
)

// stubModel returns a canned message and records the input it received.
type stubModel struct {
	reply *schema.Message
	seen  []*schema.Message
}

func (m *stubModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.seen = in
	return m.reply, nil
}

func (m *stubModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *stubModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func assembledContext(text string) rag.AssembledContext {
	return rag.AssembledContext{Text: text}
}

func Test_Generator_EmptyContextSkipsModelCall(t *testing.T) {
	t.Parallel()
	m := &stubModel{reply: schema.AssistantMessage("should not be used", nil)}
	g, err := New(&Config{ChatModel: m})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ans, err := g.Generate(context.Background(), "anything?", assembledContext(""), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ans.Text != noContextAnswer {
		t.Errorf("answer = %q, want the fixed not-found answer", ans.Text)
	}
	if m.seen != nil {
		t.Errorf("model was called despite empty context")
	}
}

func Test_Generator_ContextAndQuestionReachModel(t *testing.T) {
	t.Parallel()
	m := &stubModel{reply: schema.AssistantMessage("20 days (handbook).", nil)}
	g, err := New(&Config{ChatModel: m})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	assembled := assembledContext("[source: handbook | page 2]\nEmployees accrue 20 vacation days.")
	ans, err := g.Generate(context.Background(), "How many vacation days?", assembled, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ans.Text != "20 days (handbook)." {
		t.Errorf("answer = %q", ans.Text)
	}

	if len(m.seen) != 3 {
		t.Fatalf("want 3 messages (system, context, question), got %d", len(m.seen))
	}
	if m.seen[0].Role != schema.System {
		t.Errorf("first message is %s, want system prompt", m.seen[0].Role)
	}
	if !strings.Contains(m.seen[1].Content, "[source: handbook | page 2]") {
		t.Errorf("context message missing assembled text: %q", m.seen[1].Content)
	}
	if m.seen[2].Role != schema.User || m.seen[2].Content != "How many vacation days?" {
		t.Errorf("last message: %s %q", m.seen[2].Role, m.seen[2].Content)
	}
}

func Test_Generator_ModelUsagePreferred(t *testing.T) {
	t.Parallel()
	reply := schema.AssistantMessage("answer", nil)
	reply.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{PromptTokens: 123, CompletionTokens: 45},
	}
	g, err := New(&Config{ChatModel: &stubModel{reply: reply}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ans, err := g.Generate(context.Background(), "q", assembledContext("ctx"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ans.PromptTokens != 123 || ans.CompletionTokens != 45 || ans.Estimated {
		t.Errorf("usage not taken from model report: %+v", ans)
	}
}

func Test_Generator_FallsBackToEstimate(t *testing.T) {
	t.Parallel()
	g, err := New(&Config{ChatModel: &stubModel{reply: schema.AssistantMessage("a short answer", nil)}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ans, err := g.Generate(context.Background(), "q", assembledContext("some context text"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !ans.Estimated {
		t.Errorf("expected estimated usage when model reports none")
	}
	if ans.PromptTokens <= 0 || ans.CompletionTokens <= 0 {
		t.Errorf("estimates missing: %+v", ans)
	}
}

func Test_Generator_HistoryInjectedBeforeContext(t *testing.T) {
	t.Parallel()
	m := &stubModel{reply: schema.AssistantMessage("ok", nil)}
	g, err := New(&Config{ChatModel: m})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	history := []*schema.Message{
		schema.UserMessage("earlier question"),
		schema.AssistantMessage("earlier answer", nil),
	}
	if _, err := g.Generate(context.Background(), "follow-up", assembledContext("ctx"), history); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(m.seen) != 5 {
		t.Fatalf("want 5 messages, got %d", len(m.seen))
	}
	if m.seen[1].Content != "earlier question" || m.seen[2].Content != "earlier answer" {
		t.Errorf("history not in positions 1-2: %q, %q", m.seen[1].Content, m.seen[2].Content)
	}
}

func Test_Generator_NilModelRejected(t *testing.T) {
	t.Parallel()
	if _, err := New(&Config{}); err == nil {
		t.Fatal("want error for nil chat model")
	}
}
