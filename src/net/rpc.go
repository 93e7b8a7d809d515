package net

import "fmt"

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC encapsulates an RPC request and provides a response mechanism.
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{resp, err}
}

// CommandName returns a short name for the command of an RPC, used in logs
// and metrics.
func CommandName(cmd interface{}) string {
	switch cmd.(type) {
	case *HandoffRequest:
		return "handoff"
	case *HandoffDoneRequest:
		return "handoff_done"
	case *FlipRequest:
		return "flip"
	case *FlipAckRequest:
		return "flip_ack"
	case *AbortRequest:
		return "abort"
	case *ResumedRequest:
		return "resumed"
	case *MessageRequest:
		return "message"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}
