package chat

import (
	"strings"
	"testing"
)

func TestNewReplyRef_Truncation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"short body kept whole", "hi there", "hi there"},
		{"exactly at limit", strings.Repeat("a", replySnippetLimit), strings.Repeat("a", replySnippetLimit)},
		{"over limit truncated", strings.Repeat("b", replySnippetLimit+15), strings.Repeat("b", replySnippetLimit)},
		{"multibyte runes not split", strings.Repeat("ü", replySnippetLimit+5), strings.Repeat("ü", replySnippetLimit)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{ID: "m9", AuthorName: "Bob", Body: tt.body}
			ref := newReplyRef(m)
			if ref.Snippet != tt.want {
				t.Errorf("Snippet = %q, want %q", ref.Snippet, tt.want)
			}
			if ref.MessageID != "m9" || ref.AuthorName != "Bob" {
				t.Errorf("ref = %+v", ref)
			}
		})
	}
}
