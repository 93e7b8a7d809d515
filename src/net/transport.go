package net

// Transport provides an interface for network transports to allow a server
// to communicate with its neighbors in the tree.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other
	// servers can reach us
	AdvertiseAddr() string

	// Handoff, HandoffDone, Flip, FlipAck, Abort, Resumed and Message send
	// the appropriate RPC to the target server.

	Handoff(target string, args *HandoffRequest, resp *Response) error

	HandoffDone(target string, args *HandoffDoneRequest, resp *Response) error

	Flip(target string, args *FlipRequest, resp *Response) error

	FlipAck(target string, args *FlipAckRequest, resp *Response) error

	Abort(target string, args *AbortRequest, resp *Response) error

	Resumed(target string, args *ResumedRequest, resp *Response) error

	Message(target string, args *MessageRequest, resp *Response) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
