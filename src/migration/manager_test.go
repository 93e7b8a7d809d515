package migration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mosaicnetworks/relay/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConns struct {
	local     map[string]bool
	buffered  map[string]bool
	transfers []string
	flushed   []string
	restored  []string
	flushErr  error
}

func newFakeConns(clients ...string) *fakeConns {
	c := &fakeConns{
		local:    make(map[string]bool),
		buffered: make(map[string]bool),
	}
	for _, cl := range clients {
		c.local[cl] = true
	}
	return c
}

func (c *fakeConns) IsLocal(client string) bool {
	return c.local[client] || c.buffered[client]
}

func (c *fakeConns) Buffer(client string) error {
	c.buffered[client] = true
	return nil
}

func (c *fakeConns) Transfer(client, migrant string) error {
	if !c.local[migrant] {
		return fmt.Errorf("no connection for %s", migrant)
	}
	delete(c.local, migrant)
	c.local[client] = true
	c.transfers = append(c.transfers, migrant+">"+client)
	return nil
}

func (c *fakeConns) Flush(client string) error {
	if c.flushErr != nil {
		return c.flushErr
	}
	delete(c.buffered, client)
	c.flushed = append(c.flushed, client)
	return nil
}

func (c *fakeConns) Restore(client, migrant string) error {
	delete(c.local, client)
	c.local[migrant] = true
	c.restored = append(c.restored, client+">"+migrant)
	return nil
}

type fakeOutbox struct {
	sent []string
	fail map[string]error
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{fail: make(map[string]error)}
}

func (o *fakeOutbox) record(what string, m *Migration) error {
	o.sent = append(o.sent, what+" "+m.Client)
	return o.fail[what]
}

func (o *fakeOutbox) SendStart(m *Migration) error       { return o.record("start", m) }
func (o *fakeOutbox) SendHandoff(m *Migration) error     { return o.record("handoff", m) }
func (o *fakeOutbox) SendHandoffDone(m *Migration) error { return o.record("handoffdone", m) }
func (o *fakeOutbox) BroadcastFlip(m *Migration) error   { return o.record("flip", m) }
func (o *fakeOutbox) SendProceed(m *Migration) error     { return o.record("proceed", m) }
func (o *fakeOutbox) SendResumed(m *Migration) error     { return o.record("resumed", m) }
func (o *fakeOutbox) SendAbort(m *Migration, reason string) error {
	return o.record("abort", m)
}

// sequenceTokens hands out the tokens it was given, in order.
type sequenceTokens struct {
	tokens []Token
}

func (s *sequenceTokens) NewToken() (Token, error) {
	if len(s.tokens) == 0 {
		return "", errors.New("out of tokens")
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return t, nil
}

type managerFixture struct {
	manager *Manager
	store   *InmemStore
	conns   *fakeConns
	outbox  *fakeOutbox
}

func newFixture(t *testing.T, self string, tokens TokenSource, clients ...string) *managerFixture {
	f := &managerFixture{
		store:  NewInmemStore(),
		conns:  newFakeConns(clients...),
		outbox: newFakeOutbox(),
	}
	f.manager = NewManager(chainTree(t, self),
		f.store,
		f.conns,
		f.outbox,
		tokens,
		common.NewTestEntry(t, common.TestLogLevel))
	return f
}

func TestManagerSourceLifecycle(t *testing.T) {
	f := newFixture(t, "me", nil, "alice")
	m := f.manager

	mig, err := m.Start("alice", "dest")
	require.NoError(t, err)
	assert.Equal(t, Requested, mig.State)
	assert.Equal(t, "me", mig.Source)
	assert.Empty(t, mig.FurthestAck)
	assert.NotEmpty(t, mig.ResumeToken)
	assert.NotEqual(t, mig.ResumeToken, mig.ConfirmToken)

	_, err = m.Start("alice", "dest")
	assert.True(t, Is(err, ClientBusy), "expected ClientBusy, got %v", err)

	// Acks before the flip change nothing
	advanced, err := m.Ack("alice", "a")
	require.NoError(t, err)
	assert.False(t, advanced)

	err = m.Confirm("alice", "wrong")
	assert.True(t, Is(err, BadToken), "expected BadToken, got %v", err)

	require.NoError(t, m.Confirm("alice", mig.ConfirmToken))
	assert.Equal(t, Handoff, mig.State)

	require.NoError(t, m.HandoffComplete("alice"))
	assert.Equal(t, FlipSent, mig.State)
	assert.Equal(t, "me", mig.FurthestAck)

	err = m.Abort("alice", "too late")
	assert.True(t, Is(err, BadState), "expected BadState, got %v", err)

	for _, from := range []string{"a", "w", "b", "a", "c"} {
		_, err := m.Ack("alice", from)
		require.NoError(t, err)
	}
	assert.Equal(t, "c", mig.FurthestAck)
	assert.Equal(t, FlipSent, mig.State)

	advanced, err = m.Ack("alice", "dest")
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, AwaitingResume, mig.State)
	assert.True(t, mig.FullyAcked())

	// Duplicate ack of the destination
	advanced, err = m.Ack("alice", "dest")
	require.NoError(t, err)
	assert.False(t, advanced)

	require.NoError(t, m.Release("alice"))
	_, ok := m.Get("alice")
	assert.False(t, ok)

	err = m.Release("alice")
	assert.True(t, Is(err, UnknownClient), "expected UnknownClient, got %v", err)

	assert.Equal(t, []string{
		"start alice",
		"handoff alice",
		"flip alice",
		"proceed alice",
	}, f.outbox.sent)
}

// A client gone before PROCEED does not leave the record stuck: the
// destination is responsible and the source waits for the resume.
func TestManagerProceedFailure(t *testing.T) {
	f := newFixture(t, "me", nil, "alice")
	m := f.manager
	f.outbox.fail["proceed"] = errors.New("client gone")

	mig, err := m.Start("alice", "dest")
	require.NoError(t, err)
	require.NoError(t, m.Confirm("alice", mig.ConfirmToken))
	require.NoError(t, m.HandoffComplete("alice"))

	for _, from := range []string{"a", "b", "c"} {
		_, err := m.Ack("alice", from)
		require.NoError(t, err)
	}

	advanced, err := m.Ack("alice", "dest")
	assert.True(t, advanced)
	assert.EqualError(t, err, "client gone")
	assert.Equal(t, AwaitingResume, mig.State)

	stored, err := f.store.ByClient("alice")
	require.NoError(t, err)
	assert.Equal(t, AwaitingResume, stored.State)

	require.NoError(t, m.Release("alice"))
	assert.Equal(t, 0, f.store.Len())
}

func TestManagerStartPreconditions(t *testing.T) {
	f := newFixture(t, "me", nil, "alice")

	_, err := f.manager.Start("bob", "dest")
	assert.True(t, Is(err, UnknownClient))

	_, err = f.manager.Start("alice", "me")
	assert.True(t, Is(err, BadState))

	_, err = f.manager.Start("alice", "nowhere")
	assert.True(t, Is(err, BadState))

	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.outbox.sent)
}

func TestManagerTokenCollision(t *testing.T) {
	tokens := &sequenceTokens{tokens: []Token{"r1", "c1", "r1", "c2", "r2", "c3"}}
	f := newFixture(t, "me", tokens, "alice", "bob")

	alice, err := f.manager.Start("alice", "dest")
	require.NoError(t, err)
	assert.Equal(t, Token("r1"), alice.ResumeToken)

	bob, err := f.manager.Start("bob", "dest")
	require.NoError(t, err)
	assert.Equal(t, Token("r2"), bob.ResumeToken)
	assert.Equal(t, Token("c3"), bob.ConfirmToken)
}

func TestManagerTokenCollisionExhausted(t *testing.T) {
	seq := []Token{"r1", "c1"}
	for i := 0; i < maxTokenAttempts; i++ {
		seq = append(seq, "r1", "cx")
	}
	f := newFixture(t, "me", &sequenceTokens{tokens: seq}, "alice", "bob")

	_, err := f.manager.Start("alice", "dest")
	require.NoError(t, err)

	_, err = f.manager.Start("bob", "dest")
	assert.True(t, Is(err, TokenCollision), "expected TokenCollision, got %v", err)
	assert.Equal(t, 1, f.store.Len())
}

func TestManagerAbort(t *testing.T) {
	f := newFixture(t, "me", nil, "alice", "bob")
	m := f.manager

	_, err := m.Start("alice", "dest")
	require.NoError(t, err)
	require.NoError(t, m.Abort("alice", "changed my mind"))

	bob, err := m.Start("bob", "dest")
	require.NoError(t, err)
	require.NoError(t, m.Confirm("bob", bob.ConfirmToken))
	require.NoError(t, m.Abort("bob", "destination too slow"))

	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, Aborted, bob.State)

	// Only the migration that shipped its handoff tells the destination.
	assert.Equal(t, []string{
		"start alice",
		"start bob",
		"handoff bob",
		"abort bob",
	}, f.outbox.sent)

	err = m.Abort("bob", "again")
	assert.True(t, Is(err, UnknownClient))
}

func TestManagerHandoffFailure(t *testing.T) {
	f := newFixture(t, "me", nil, "alice")
	f.outbox.fail["handoff"] = errors.New("link down")

	mig, err := f.manager.Start("alice", "dest")
	require.NoError(t, err)

	err = f.manager.Confirm("alice", mig.ConfirmToken)
	assert.True(t, Is(err, AbortedMigration), "expected AbortedMigration, got %v", err)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, Aborted, mig.State)
}

func TestManagerDestinationLifecycle(t *testing.T) {
	f := newFixture(t, "dest", nil, "migrant-1")
	m := f.manager

	mig, err := m.Accept("alice", "me", "resume", "confirm")
	require.NoError(t, err)
	assert.Equal(t, Handoff, mig.State)
	assert.Equal(t, "dest", mig.Destination)

	_, err = m.Accept("alice", "me", "other", "confirm")
	assert.True(t, Is(err, ClientBusy))
	_, err = m.Accept("bob", "me", "resume", "confirm")
	assert.True(t, Is(err, TokenCollision))

	// Not buffering yet, the source is still responsible.
	skip, err := m.SkipOutput("alice", "w")
	require.NoError(t, err)
	assert.True(t, skip)

	err = m.Resume("alice", "migrant-1")
	assert.True(t, Is(err, BadState), "expected BadState, got %v", err)

	require.NoError(t, m.Flip("alice"))
	assert.Equal(t, AwaitingResume, mig.State)
	assert.True(t, f.conns.buffered["alice"])

	err = m.Flip("alice")
	assert.True(t, Is(err, BadState))

	skip, err = m.SkipOutput("alice", "w")
	require.NoError(t, err)
	assert.False(t, skip)

	found, err := m.Lookup("resume")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Client)

	require.NoError(t, m.Resume("alice", "migrant-1"))
	assert.Equal(t, Resumed, mig.State)
	assert.Equal(t, []string{"migrant-1>alice"}, f.conns.transfers)
	assert.Equal(t, []string{"alice"}, f.conns.flushed)
	assert.Equal(t, 0, f.store.Len())

	_, err = m.Lookup("resume")
	assert.True(t, Is(err, UnknownToken))

	assert.Equal(t, []string{"handoffdone alice", "resumed alice"}, f.outbox.sent)
}

func TestManagerResumeFlushFailure(t *testing.T) {
	f := newFixture(t, "dest", nil, "migrant-1", "migrant-2")
	m := f.manager

	mig, err := m.Accept("alice", "me", "resume", "confirm")
	require.NoError(t, err)
	require.NoError(t, m.Flip("alice"))

	f.conns.flushErr = errors.New("connection closed")
	err = m.Resume("alice", "migrant-1")
	assert.EqualError(t, err, "connection closed")
	assert.Equal(t, []string{"alice>migrant-1"}, f.conns.restored)
	assert.Equal(t, AwaitingResume, mig.State)

	// The token can be presented again.
	found, err := m.Lookup("resume")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Client)

	f.conns.flushErr = nil
	require.NoError(t, m.Resume("alice", "migrant-2"))
	assert.Equal(t, Resumed, mig.State)
	assert.Equal(t, []string{"alice"}, f.conns.flushed)
	assert.Equal(t, 0, f.store.Len())
}

func TestManagerResumePreconditions(t *testing.T) {
	f := newFixture(t, "dest", nil, "migrant-1")
	m := f.manager

	err := m.Resume("", "migrant-1")
	assert.True(t, Is(err, InvariantViolation))

	err = m.Resume("alice", "")
	assert.True(t, Is(err, InvariantViolation))

	err = m.Resume("alice", "migrant-1")
	assert.True(t, Is(err, InvariantViolation))

	assert.Empty(t, f.conns.transfers)
}

func TestManagerUnknownToken(t *testing.T) {
	f := newFixture(t, "dest", nil)

	_, err := f.manager.Accept("alice", "me", "resume", "confirm")
	require.NoError(t, err)
	require.NoError(t, f.manager.Flip("alice"))

	_, err = f.manager.Lookup("never-issued")
	assert.True(t, Is(err, UnknownToken), "expected UnknownToken, got %v", err)

	mig, ok := f.manager.Get("alice")
	require.True(t, ok)
	assert.Equal(t, AwaitingResume, mig.State)
	assert.Equal(t, 1, f.store.Len())
}

func TestManagerDiscard(t *testing.T) {
	f := newFixture(t, "dest", nil)
	m := f.manager

	_, err := m.Accept("alice", "me", "resume", "confirm")
	require.NoError(t, err)
	require.NoError(t, m.Discard("alice", "aborted"))
	assert.Equal(t, 0, f.store.Len())

	_, err = m.Accept("bob", "me", "resume-2", "confirm")
	require.NoError(t, err)
	require.NoError(t, m.Flip("bob"))
	err = m.Discard("bob", "aborted")
	assert.True(t, Is(err, BadState))
}

func TestManagerMigrationsAreCopies(t *testing.T) {
	f := newFixture(t, "me", nil, "alice")

	_, err := f.manager.Start("alice", "dest")
	require.NoError(t, err)

	all := f.manager.Migrations()
	require.Len(t, all, 1)
	all[0].State = Aborted

	mig, _ := f.manager.Get("alice")
	assert.Equal(t, Requested, mig.State)
}
