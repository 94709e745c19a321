package buffer

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func msgAt(role, content string, ts time.Time) Message {
	return Message{Role: role, Content: content, Timestamp: ts}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(Window, Config{MaxSize: -1}); err == nil {
		t.Fatalf("expected config error for negative maxSize")
	}
	if _, err := New(Type("bogus"), Config{}); err == nil {
		t.Fatalf("expected config error for unknown strategy")
	}
	if _, err := New(Summary, Config{MaxSize: 10, SummarizationThreshold: 1}); err == nil {
		t.Fatalf("expected config error for threshold < 2")
	}
}

func TestWindowBuffer_Bound(t *testing.T) {
	b, err := New(Window, Config{MaxSize: 3})
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	now := time.Now()
	for i := 0; i < 10; i++ {
		if err := b.Add(msgAt("user", fmt.Sprintf("m%d", i), now)); err != nil {
			t.Fatalf("add: %v", err)
		}
		if b.Len() > 3 {
			t.Fatalf("window exceeded bound after add %d: len=%d", i, b.Len())
		}
	}
	msgs := b.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 kept messages, got %d", len(msgs))
	}
	for i, want := range []string{"m7", "m8", "m9"} {
		if msgs[i].Content != want {
			t.Fatalf("kept[%d] = %q, want %q", i, msgs[i].Content, want)
		}
	}
	b.Trim() // idempotent with Add's eviction
	if b.Len() != 3 {
		t.Fatalf("trim changed a bounded buffer: len=%d", b.Len())
	}
}

func TestSummaryBuffer_Trigger(t *testing.T) {
	raw, err := New(Summary, Config{MaxSize: 20, SummarizationThreshold: 6})
	if err != nil {
		t.Fatalf("new summary: %v", err)
	}
	b := raw.(*summaryBuffer)
	now := time.Now()
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := b.Add(msgAt(role, fmt.Sprintf("message about deployment pipeline %d", i), now)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if len(b.Summaries()) < 1 {
		t.Fatalf("expected at least one summary after threshold")
	}
	if b.Len() >= 6 {
		t.Fatalf("expected fewer retained messages than pre-trigger count, got %d", b.Len())
	}
	ctx := b.Context()
	if !strings.Contains(ctx, "[summary]") {
		t.Fatalf("context missing summary section: %q", ctx)
	}
}

func TestSummaryBuffer_SummaryCap(t *testing.T) {
	raw, _ := New(Summary, Config{MaxSize: 50, SummarizationThreshold: 2})
	b := raw.(*summaryBuffer)
	now := time.Now()
	for i := 0; i < 40; i++ {
		_ = b.Add(msgAt("user", fmt.Sprintf("note %d", i), now))
	}
	if got := len(b.Summaries()); got > maxRetainedSummaries {
		t.Fatalf("summaries exceeded cap: %d", got)
	}
}

func TestConversationBuffer_FIFOAndQueries(t *testing.T) {
	raw, err := New(Conversation, Config{MaxSize: 4})
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	b := raw.(*conversationBuffer)
	now := time.Now()
	_ = b.Add(msgAt("user", "tell me about Redis", now))
	_ = b.Add(msgAt("assistant", "Redis is a key-value store", now))
	_ = b.Add(msgAt("user", "and Postgres?", now))
	_ = b.Add(msgAt("assistant", "Postgres is relational", now))
	_ = b.Add(msgAt("user", "thanks", now))

	if b.Len() != 4 {
		t.Fatalf("expected FIFO bound 4, got %d", b.Len())
	}
	if b.Messages()[0].Content != "Redis is a key-value store" {
		t.Fatalf("oldest message not evicted first: %q", b.Messages()[0].Content)
	}
	if got := len(b.ByRole("assistant")); got != 2 {
		t.Fatalf("expected 2 assistant messages, got %d", got)
	}
	if got := len(b.Search("postgres")); got != 2 {
		t.Fatalf("expected 2 search hits for postgres, got %d", got)
	}
	if b.EstimateTokens() <= 0 {
		t.Fatalf("expected positive token estimate")
	}
}

func TestWorkingBuffer_ScratchState(t *testing.T) {
	raw, err := New(Working, Config{MaxSize: 10})
	if err != nil {
		t.Fatalf("new working: %v", err)
	}
	b := raw.(*workingBuffer)
	now := time.Now()
	_ = b.Add(Message{Role: "reasoning", Content: "plan the query", Timestamp: now, Metadata: Metadata{
		CurrentStep: "plan",
		Reasoning:   "need schema first",
		Variables:   map[string]string{"table": "users"},
	}})
	_ = b.Add(Message{Role: "tool", Content: "ran describe", Timestamp: now, Metadata: Metadata{
		ToolCall:  "describe_table",
		Variables: map[string]string{"columns": "12"},
	}})

	if b.CurrentStep() != "plan" {
		t.Fatalf("current step = %q", b.CurrentStep())
	}
	vars := b.Variables()
	if vars["table"] != "users" || vars["columns"] != "12" {
		t.Fatalf("variables not accumulated: %#v", vars)
	}
	if got := len(b.Reasoning()); got != 2 {
		t.Fatalf("expected 2 reasoning entries, got %d", got)
	}
	ctx := b.Context()
	if !strings.Contains(ctx, "current step: plan") || !strings.Contains(ctx, "table=users") {
		t.Fatalf("context missing scratch state: %q", ctx)
	}
}

func TestWorkingBuffer_ReasoningChainCap(t *testing.T) {
	raw, _ := New(Working, Config{MaxSize: 100})
	b := raw.(*workingBuffer)
	now := time.Now()
	for i := 0; i < 30; i++ {
		_ = b.Add(Message{Role: "reasoning", Content: "step", Timestamp: now, Metadata: Metadata{
			Reasoning: fmt.Sprintf("thought %d", i),
		}})
	}
	chain := b.Reasoning()
	if len(chain) != maxReasoningChain {
		t.Fatalf("reasoning chain = %d, want %d", len(chain), maxReasoningChain)
	}
	if chain[len(chain)-1] != "thought 29" {
		t.Fatalf("newest reasoning lost: %q", chain[len(chain)-1])
	}
}

func TestEpisodicBuffer_GapSplit(t *testing.T) {
	raw, err := New(Episodic, Config{MaxSize: 50, EpisodeTimeout: 30 * time.Minute})
	if err != nil {
		t.Fatalf("new episodic: %v", err)
	}
	b := raw.(*episodicBuffer)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = b.Add(msgAt("user", fmt.Sprintf("morning %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	// One gap larger than the timeout must produce exactly two episodes.
	later := base.Add(2 * time.Hour)
	for i := 0; i < 3; i++ {
		_ = b.Add(msgAt("user", fmt.Sprintf("afternoon %d", i), later.Add(time.Duration(i)*time.Minute)))
	}
	eps := b.Episodes()
	if len(eps) != 2 {
		t.Fatalf("expected exactly 2 episodes, got %d", len(eps))
	}
	if len(eps[0]) != 3 || len(eps[1]) != 3 {
		t.Fatalf("unexpected episode sizes: %d, %d", len(eps[0]), len(eps[1]))
	}
}

func TestEpisodicBuffer_TopicTransitionAndSummary(t *testing.T) {
	raw, _ := New(Episodic, Config{MaxSize: 50})
	b := raw.(*episodicBuffer)
	base := time.Now()
	for i := 0; i < 4; i++ {
		_ = b.Add(msgAt("user", fmt.Sprintf("budget planning detail %d", i), base.Add(time.Duration(i)*time.Second)))
	}
	_ = b.Add(msgAt("user", "let's talk about hiring instead", base.Add(5*time.Second)))

	eps := b.Episodes()
	if len(eps) != 2 {
		t.Fatalf("expected topic transition to open a new episode, got %d episodes", len(eps))
	}
	if b.episodes[0].summary == "" {
		t.Fatalf("expected summary on finalized episode with >= 3 messages")
	}
	if !strings.Contains(b.Context(), "episode 2") {
		t.Fatalf("context missing second episode: %q", b.Context())
	}
}

func TestEpisodicBuffer_TrimOldestFirst(t *testing.T) {
	raw, _ := New(Episodic, Config{MaxSize: 6})
	b := raw.(*episodicBuffer)
	base := time.Now()
	for i := 0; i < 12; i++ {
		_ = b.Add(msgAt("user", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
		if b.Len() > 6 {
			t.Fatalf("episodic exceeded bound: %d", b.Len())
		}
	}
	msgs := b.Messages()
	if msgs[0].Content == "m0" {
		t.Fatalf("expected oldest messages trimmed first")
	}
	if msgs[len(msgs)-1].Content != "m11" {
		t.Fatalf("newest message lost: %q", msgs[len(msgs)-1].Content)
	}
}

func TestBuffers_ClearResets(t *testing.T) {
	for _, typ := range Types() {
		b, err := New(typ, Config{MaxSize: 10})
		if err != nil {
			t.Fatalf("new %s: %v", typ, err)
		}
		_ = b.Add(msgAt("user", "hello", time.Now()))
		b.Clear()
		if b.Len() != 0 {
			t.Fatalf("%s: clear left %d messages", typ, b.Len())
		}
		if b.Context() != "" {
			t.Fatalf("%s: clear left context %q", typ, b.Context())
		}
	}
}
