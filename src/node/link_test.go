package node

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/relay/src/common"
	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/mosaicnetworks/relay/src/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkOrder(t *testing.T) {
	_, from := net.NewInmemTransport("from")
	_, to := net.NewInmemTransport("to")
	from.Connect("to", to)

	shutdownCh := make(chan struct{})
	defer close(shutdownCh)

	l := newLink("to", "to", from, time.Millisecond, shutdownCh, common.NewTestEntry(t, common.TestLogLevel))
	go l.run()

	const count = 100
	for i := 0; i < count; i++ {
		l.enqueue(&net.MessageRequest{Text: strconv.Itoa(i)})
	}

	for i := 0; i < count; i++ {
		select {
		case rpc := <-to.Consumer():
			msg := rpc.Command.(*net.MessageRequest)
			if msg.Text != strconv.Itoa(i) {
				t.Fatalf("expected message %d, got %s", i, msg.Text)
			}
			rpc.Respond(&net.Response{From: "to"}, nil)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

// lossyTransport delivers every message but reports some of the calls as
// failed, as when the reply is lost on the way back: the first failures calls,
// and every odd call if every is set.
type lossyTransport struct {
	*net.InmemTransport

	lock     sync.Mutex
	calls    int
	failures int
	every    bool
}

func (lt *lossyTransport) Message(target string, args *net.MessageRequest, resp *net.Response) error {
	err := lt.InmemTransport.Message(target, args, resp)

	lt.lock.Lock()
	lt.calls++
	lose := lt.calls <= lt.failures || (lt.every && lt.calls%2 == 1)
	lt.lock.Unlock()

	if err == nil && lose {
		return fmt.Errorf("reply lost")
	}
	return err
}

func TestLinkRetriesWithSameSequence(t *testing.T) {
	_, inmem := net.NewInmemTransport("from")
	_, to := net.NewInmemTransport("to")
	inmem.Connect("to", to)

	// More failures than the link tolerates before reporting the neighbor
	// unreachable.
	from := &lossyTransport{InmemTransport: inmem, failures: unreachableAttempts + 2}

	shutdownCh := make(chan struct{})
	defer close(shutdownCh)

	l := newLink("to", "to", from, time.Millisecond, shutdownCh, common.NewTestEntry(t, common.TestLogLevel))
	go l.run()

	l.enqueue(&net.MessageRequest{Text: "first"})
	l.enqueue(&net.MessageRequest{Text: "second"})

	var got []*net.MessageRequest
	for len(got) < unreachableAttempts+4 {
		select {
		case rpc := <-to.Consumer():
			got = append(got, rpc.Command.(*net.MessageRequest))
			rpc.Respond(&net.Response{From: "to"}, nil)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout after %d requests", len(got))
		}
	}

	first := got[:unreachableAttempts+3]
	for _, msg := range first {
		assert.Equal(t, "first", msg.Text)
		assert.Equal(t, first[0].Sequence, msg.Sequence)
	}
	assert.Equal(t, uint64(1), first[0].Seq)

	second := got[len(got)-1]
	assert.Equal(t, "second", second.Text)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, first[0].Epoch, second.Epoch)
}

// Every other reply between the two servers is lost, so half the requests
// reach bob's server twice. Bob still sees each line once, in order.
func TestLostRepliesDeliverOnce(t *testing.T) {
	servers := []*tree.Server{
		tree.NewServer("a", "a", ""),
		tree.NewServer("b", "b", "a"),
	}

	_, ta := net.NewInmemTransport("a")
	_, tb := net.NewInmemTransport("b")
	ta.Connect("b", tb)
	tb.Connect("a", ta)

	transports := map[string]net.Transport{
		"a": &lossyTransport{InmemTransport: ta, every: true},
		"b": tb,
	}

	nodes := make(map[string]*Node)
	for _, s := range servers {
		tr, err := tree.NewTree(s.Name, servers)
		require.NoError(t, err)

		conf := TestConfig(t)
		conf.RetryDelay = time.Millisecond

		node := NewNode(conf, tr, migration.NewInmemStore(), transports[s.Name])
		require.NoError(t, node.Init())
		node.RunAsync()
		nodes[s.Name] = node
	}
	defer shutdownNodes(nodes)

	alice := NewInmemConn()
	bob := NewInmemConn()
	require.NoError(t, nodes["a"].Connect("alice", alice))
	require.NoError(t, nodes["b"].Connect("bob", bob))

	const count = 50
	expected := make([]string, count)
	for i := 0; i < count; i++ {
		require.NoError(t, nodes["a"].Say("alice", "bob", strconv.Itoa(i)))
		expected[i] = "MSG alice " + strconv.Itoa(i)
	}

	waitFor(t, 10*time.Second, "bob's lines", func() bool {
		return len(messages(bob)) >= count && nodes["a"].GetStats()["pending_rpcs"] == "0"
	})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, expected, messages(bob))
	assert.NotEqual(t, "0", nodes["b"].GetStats()["replays"])
}
