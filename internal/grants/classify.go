package grants

import "strings"

type ReplyKind int

const (
	ReplyResults ReplyKind = iota
	ReplyClarification
)

func (k ReplyKind) String() string {
	if k == ReplyClarification {
		return "clarification"
	}
	return "results"
}

// Classifier decides whether a raw reply is a grant listing or a follow-up
// question. It must be pure.
type Classifier func(raw string) ReplyKind

// ClassifyReply treats a reply as a clarification when it asks something and
// carries none of the grant field labels. A listing that ends with a
// question, or a question that quotes a label, is misread; callers needing
// better can swap in their own Classifier.
func ClassifyReply(raw string) ReplyKind {
	if strings.Contains(raw, "?") && !hasMarkers(raw) {
		return ReplyClarification
	}
	return ReplyResults
}
