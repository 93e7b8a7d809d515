// Package net implements the transports relay servers use to talk to their
// neighbors in the tree.
//
// This package contains two implementations of the Transport interface, which
// is used by relay servers to send and receive RPC requests (HandoffRequest,
// FlipRequest, FlipAckRequest, MessageRequest, etc.):
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// Requests are only ever sent between neighbors. The node package takes care
// of flooding and of forwarding unicast requests hop by hop, and of keeping
// the requests sent over each link in order.
//
// TCP
//
// To use a TCP transport, set the following configuration options in the
// relay Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the server binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other
// servers. If BindAddr is a local address not reachable by other servers, it
// is useful to set AdvertiseAddr to the reachable public address.
package net
