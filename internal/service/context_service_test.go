package service

import (
	"testing"
	"time"

	"localchat/internal/domain"
)

func TestContextWindow_Build(t *testing.T) {
	base := time.Unix(100, 0).UTC()
	prior := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: "third", Timestamp: base.Add(3 * time.Second)},
		{Role: domain.RoleUser, Content: "first", Timestamp: base.Add(1 * time.Second)},
		{Role: domain.RoleAssistant, Content: ApologyMessage, Failed: true, Timestamp: base.Add(2 * time.Second)},
		{Role: domain.RoleUser, Content: "   ", Timestamp: base.Add(4 * time.Second)},
		{Role: domain.RoleUser, Content: "fifth", Timestamp: base.Add(5 * time.Second)},
	}
	next := domain.ChatMessage{Role: domain.RoleUser, Content: "now"}

	got := ContextWindow{MaxMessages: 2, System: "be brief"}.Build(prior, next)
	want := []string{"be brief", "third", "fifth", "now"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("message %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
	if got[0].Role != domain.RoleSystem {
		t.Fatalf("expected system role first, got %s", got[0].Role)
	}
}

func TestContextWindow_DefaultLimit(t *testing.T) {
	prior := make([]domain.ChatMessage, 30)
	for i := range prior {
		prior[i] = domain.ChatMessage{Role: domain.RoleUser, Content: "m", Timestamp: time.Unix(int64(i), 0)}
	}
	got := ContextWindow{}.Build(prior, domain.ChatMessage{Role: domain.RoleUser, Content: "x"})
	if len(got) != defaultHistoryWindow+1 {
		t.Fatalf("expected %d messages, got %d", defaultHistoryWindow+1, len(got))
	}
}

func TestSplitThinking(t *testing.T) {
	cases := []struct {
		raw, thinking, content string
	}{
		{"<think>plan it</think>\n\nAnswer", "plan it", "Answer"},
		{"  <THINK>\nmulti\nline\n</THINK>ok", "multi\nline", "ok"},
		{"no tags here", "", "no tags here"},
		{"text <think>late</think>", "", "text <think>late</think>"},
	}
	for _, tc := range cases {
		thinking, content := splitThinking(tc.raw)
		if thinking != tc.thinking || content != tc.content {
			t.Errorf("splitThinking(%q) = (%q, %q), want (%q, %q)", tc.raw, thinking, content, tc.thinking, tc.content)
		}
	}
}
