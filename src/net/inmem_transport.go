package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow relay servers
// to be tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    time.Second,
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Handoff implements the Transport interface.
func (i *InmemTransport) Handoff(target string, args *HandoffRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// HandoffDone implements the Transport interface.
func (i *InmemTransport) HandoffDone(target string, args *HandoffDoneRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// Flip implements the Transport interface.
func (i *InmemTransport) Flip(target string, args *FlipRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// FlipAck implements the Transport interface.
func (i *InmemTransport) FlipAck(target string, args *FlipAckRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// Abort implements the Transport interface.
func (i *InmemTransport) Abort(target string, args *AbortRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// Resumed implements the Transport interface.
func (i *InmemTransport) Resumed(target string, args *ResumedRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

// Message implements the Transport interface.
func (i *InmemTransport) Message(target string, args *MessageRequest, resp *Response) error {
	return i.genericRPC(target, args, resp)
}

func (i *InmemTransport) genericRPC(target string, args interface{}, resp *Response) error {
	i.RLock()
	timeout := i.timeout
	i.RUnlock()

	rpcResp, err := i.makeRPC(target, args, timeout)
	if err != nil {
		return err
	}

	// Copy the result back
	if out, ok := rpcResp.Response.(*Response); ok && out != nil {
		*resp = *out
	}
	return nil
}

func (i *InmemTransport) makeRPC(target string, args interface{}, timeout time.Duration) (rpcResp RPCResponse, err error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		err = fmt.Errorf("failed to connect to peer: %v", target)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{
		Command:  args,
		RespChan: respCh,
	}:
	case <-timer.C:
		err = fmt.Errorf("command timed out")
		return
	}

	// Wait for a response
	select {
	case rpcResp = <-respCh:
		if rpcResp.Error != nil {
			err = rpcResp.Error
		}
	case <-timer.C:
		err = fmt.Errorf("command timed out")
	}
	return
}

// SetTimeout changes how long an RPC waits for its reply.
func (i *InmemTransport) SetTimeout(timeout time.Duration) {
	i.Lock()
	defer i.Unlock()
	i.timeout = timeout
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}
