package composer

import (
	"strings"
	"testing"

	"github.com/codeprimate/askmyfiles/internal/engine"
)

func TestCompose_Roles(t *testing.T) {
	msgs := New("").Compose("What is Go?", "Go is a compiled language.")

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != engine.RoleSystem || msgs[0].Content != DefaultSystemPrompt {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != engine.RoleUser {
		t.Errorf("expected role user, got %q", msgs[1].Role)
	}
}

func TestCompose_CustomSystemPrompt(t *testing.T) {
	msgs := New("be terse").Compose("q", "")
	if msgs[0].Content != "be terse" {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
}

func TestUserPrompt_Layout(t *testing.T) {
	got := UserPrompt("  What is Go?\n", "Go is a compiled language.\nIt has goroutines.")
	want := "Important Knowledge from My Library:\n" +
		"BEGIN Important Knowledge\n" +
		"Go is a compiled language.\nIt has goroutines.\n" +
		"END Important Knowledge\n\n" +
		"Consider My Library when you answer my question.\n\n" +
		"Question: What is Go?\n" +
		"Answer:"
	if got != want {
		t.Errorf("UserPrompt =\n%s\nwant\n%s", got, want)
	}
}

func TestUserPrompt_EmptyContext(t *testing.T) {
	got := UserPrompt("anything?", "   ")
	if !strings.Contains(got, "BEGIN Important Knowledge\nEND Important Knowledge") {
		t.Errorf("empty knowledge block not rendered: %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}

	msgs := []engine.Message{{Content: "abcd"}, {Content: "abcde"}}
	if got := EstimateMessageTokens(msgs); got != 3 {
		t.Errorf("EstimateMessageTokens = %d, want 3", got)
	}
}
