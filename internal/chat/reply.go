package chat

// replySnippetLimit bounds the quoted text embedded in a ReplyRef.
const replySnippetLimit = 60

// newReplyRef snapshots a truncated copy of the quoted message. The
// snapshot is final: later edits or removal of the quoted message do not
// touch it.
func newReplyRef(m Message) *ReplyRef {
	snippet := m.Body
	if r := []rune(snippet); len(r) > replySnippetLimit {
		snippet = string(r[:replySnippetLimit])
	}
	return &ReplyRef{
		MessageID:  m.ID,
		AuthorName: m.AuthorName,
		Snippet:    snippet,
	}
}
