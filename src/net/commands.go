package net

// Every request carries From, the server that sent it over this link, so that
// floods are not sent back where they came from. Unicast requests also carry
// Origin and Target, the servers at both ends of the route; they are
// forwarded hop by hop until they reach Target.

// Sequence numbers the requests sent over one link. Epoch identifies the
// sender's link, Seq counts from 1 within it. A request sent again after a
// lost reply keeps its Sequence, so the receiver can drop the replay.
type Sequence struct {
	Epoch int64
	Seq   uint64
}

// Newer reports whether s comes after last on the same link, or belongs to a
// newer link.
func (s Sequence) Newer(last Sequence) bool {
	if s.Epoch != last.Epoch {
		return s.Epoch > last.Epoch
	}
	return s.Seq > last.Seq
}

// HandoffRequest ships the local-only state of a migrating client from its
// source to its destination, together with the migration tokens.
type HandoffRequest struct {
	Sequence

	From   string
	Origin string
	Target string

	Client       string
	ResumeToken  string
	ConfirmToken string
	State        map[string]string
}

// HandoffDoneRequest tells the source that the destination registered the
// handoff.
type HandoffDoneRequest struct {
	Sequence

	From   string
	Origin string
	Target string

	Client string
}

// FlipRequest announces that Destination takes over responsibility for the
// output of Client. It is flooded through the whole tree; Origin is the
// source of the migration.
type FlipRequest struct {
	Sequence

	From   string
	Origin string

	Client      string
	Destination string
}

// FlipAckRequest acknowledges a flip. Origin is the acknowledging server and
// Target the source of the migration.
type FlipAckRequest struct {
	Sequence

	From   string
	Origin string
	Target string

	Client string
}

// AbortRequest tells the destination to discard an accepted handoff.
type AbortRequest struct {
	Sequence

	From   string
	Origin string
	Target string

	Client string
	Reason string
}

// ResumedRequest tells the source that the client resumed on the
// destination.
type ResumedRequest struct {
	Sequence

	From   string
	Origin string
	Target string

	Client string
}

// MessageRequest carries a line from Sender to Recipient. It is flooded
// through the tree; Origin is the server Sender is connected to.
type MessageRequest struct {
	Sequence

	From   string
	Origin string

	Sender    string
	Recipient string
	Text      string
}

// Response is the reply to every request. A link sends its next request only
// after receiving the reply to the previous one.
type Response struct {
	From string
}

// Stamp returns a copy of cmd carrying seq. Requests flooded to several links
// share one value, so the original is never modified.
func Stamp(cmd interface{}, seq Sequence) interface{} {
	switch c := cmd.(type) {
	case *HandoffRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *HandoffDoneRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *FlipRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *FlipAckRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *AbortRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *ResumedRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	case *MessageRequest:
		cp := *c
		cp.Sequence = seq
		return &cp
	default:
		return cmd
	}
}

// SequenceOf returns the link a request came over and its Sequence.
func SequenceOf(cmd interface{}) (string, Sequence, bool) {
	switch c := cmd.(type) {
	case *HandoffRequest:
		return c.From, c.Sequence, true
	case *HandoffDoneRequest:
		return c.From, c.Sequence, true
	case *FlipRequest:
		return c.From, c.Sequence, true
	case *FlipAckRequest:
		return c.From, c.Sequence, true
	case *AbortRequest:
		return c.From, c.Sequence, true
	case *ResumedRequest:
		return c.From, c.Sequence, true
	case *MessageRequest:
		return c.From, c.Sequence, true
	default:
		return "", Sequence{}, false
	}
}
