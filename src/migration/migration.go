package migration

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// State captures the lifecycle state of a Migration.
type State uint32

const (
	// Requested is the state in which the source has offered the migration to
	// the client and waits for MIGRATE OK.
	Requested State = iota

	// Handoff is the state in which the source transfers the local-only client
	// state to the destination. On the destination, it is the state of an
	// accepted handoff waiting for the flip.
	Handoff

	// FlipSent is the state in which the flip is propagating and the source
	// collects acknowledgements.
	FlipSent

	// Acked is the state reached when the destination acknowledged the flip.
	Acked

	// AwaitingResume is the state in which the client was told to reconnect to
	// the destination. On the destination, it is the state in which output is
	// buffered until the client presents its resume token.
	AwaitingResume

	// Resumed is the terminal state of a successful migration.
	Resumed

	// Aborted is the terminal state of a migration abandoned before the flip.
	Aborted
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Requested:
		return "Requested"
	case Handoff:
		return "Handoff"
	case FlipSent:
		return "FlipSent"
	case Acked:
		return "Acked"
	case AwaitingResume:
		return "AwaitingResume"
	case Resumed:
		return "Resumed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Migration is one client in transit.
type Migration struct {
	// Client is the migrating client. It is never empty.
	Client string

	// Source is the server the client is migrating away from.
	Source string

	// Destination is the server the client is migrating to. If the client is
	// migrating here, this is the local server.
	Destination string

	// FurthestAck is the server furthest along the direct path from here to
	// Destination that acknowledged the flip. It is empty until the flip is
	// sent, then the local server, and equals Destination at the end of the
	// acknowledgement cycle. Storing only the furthest ack is enough because
	// acks along the direct path arrive in path order.
	FurthestAck string

	// The tokens are persisted but never exposed by the service.
	ResumeToken  Token `codec:"ResumeToken" json:"-"`
	ConfirmToken Token `codec:"ConfirmToken" json:"-"`

	State State

	Created time.Time
	Updated time.Time
}

// NewMigration creates a Migration in the Requested state.
func NewMigration(client, source, destination string) *Migration {
	now := time.Now()
	return &Migration{
		Client:      client,
		Source:      source,
		Destination: destination,
		State:       Requested,
		Created:     now,
		Updated:     now,
	}
}

// FlipSent reports whether the flip was sent. It is only meaningful on the
// source.
func (m *Migration) FlipSent() bool {
	return m.FurthestAck != ""
}

// FullyAcked reports whether the destination acknowledged the flip.
func (m *Migration) FullyAcked() bool {
	return m.FurthestAck != "" && m.FurthestAck == m.Destination
}

func (m *Migration) setState(s State) {
	m.State = s
	m.Updated = time.Now()
}

// Copy returns a copy of the Migration, safe to hand out of the node's
// processing loop.
func (m *Migration) Copy() *Migration {
	c := *m
	return &c
}

// Marshal returns the JSON encoding of the Migration.
func (m *Migration) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(m); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a JSON encoded Migration.
func (m *Migration) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(m)
}
