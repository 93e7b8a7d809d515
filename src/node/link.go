package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/relay/src/metrics"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/sirupsen/logrus"
)

const (
	// unreachableAttempts is the number of failed attempts after which a
	// neighbor is reported unreachable. The link keeps retrying.
	unreachableAttempts = 5
	maxRetryDelay       = 2 * time.Second
)

// link is the ordered channel to a neighbor. Requests are sent one at a time,
// each after the reply to the previous one, so the neighbor processes them in
// the order they were queued. Every request carries the link's Sequence and
// is retried until it is acknowledged; the neighbor drops replays.
type link struct {
	neighbor string
	addr     string
	trans    net.Transport

	epoch      int64
	seq        uint64
	retryDelay time.Duration

	queueLock sync.Mutex
	queue     []interface{}
	signalCh  chan struct{}

	shutdownCh <-chan struct{}
	logger     *logrus.Entry
}

func newLink(neighbor, addr string,
	trans net.Transport,
	retryDelay time.Duration,
	shutdownCh <-chan struct{},
	logger *logrus.Entry) *link {

	return &link{
		neighbor:   neighbor,
		addr:       addr,
		trans:      trans,
		epoch:      time.Now().UnixNano(),
		retryDelay: retryDelay,
		signalCh:   make(chan struct{}, 1),
		shutdownCh: shutdownCh,
		logger:     logger.WithField("neighbor", neighbor),
	}
}

// enqueue never blocks.
func (l *link) enqueue(cmd interface{}) {
	l.queueLock.Lock()
	l.queue = append(l.queue, cmd)
	l.queueLock.Unlock()

	select {
	case l.signalCh <- struct{}{}:
	default:
	}
}

func (l *link) pop() (interface{}, bool) {
	l.queueLock.Lock()
	defer l.queueLock.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	cmd := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return cmd, true
}

func (l *link) pending() int {
	l.queueLock.Lock()
	defer l.queueLock.Unlock()
	return len(l.queue)
}

func (l *link) run() {
	for {
		select {
		case <-l.signalCh:
		case <-l.shutdownCh:
			return
		}

		for {
			cmd, ok := l.pop()
			if !ok {
				break
			}
			if !l.deliver(cmd) {
				return
			}
		}
	}
}

// deliver sends cmd until the neighbor acknowledges it. It returns false on
// shutdown.
func (l *link) deliver(cmd interface{}) bool {
	l.seq++
	cmd = net.Stamp(cmd, net.Sequence{Epoch: l.epoch, Seq: l.seq})

	for attempt := 1; ; attempt++ {
		err := l.send(cmd)
		if err == nil {
			metrics.RecordRPC(net.CommandName(cmd), false)
			return true
		}

		fields := logrus.Fields{
			"command": net.CommandName(cmd),
			"seq":     l.seq,
			"attempt": attempt,
			"error":   err,
		}
		if attempt == unreachableAttempts {
			l.logger.WithFields(fields).Error("Neighbor unreachable, still retrying")
		} else {
			l.logger.WithFields(fields).Warn("Failed to send RPC")
		}

		delay := time.Duration(attempt) * l.retryDelay
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}

		select {
		case <-time.After(delay):
		case <-l.shutdownCh:
			return false
		}
	}
}

func (l *link) send(cmd interface{}) error {
	var resp net.Response

	switch c := cmd.(type) {
	case *net.HandoffRequest:
		return l.trans.Handoff(l.addr, c, &resp)
	case *net.HandoffDoneRequest:
		return l.trans.HandoffDone(l.addr, c, &resp)
	case *net.FlipRequest:
		return l.trans.Flip(l.addr, c, &resp)
	case *net.FlipAckRequest:
		return l.trans.FlipAck(l.addr, c, &resp)
	case *net.AbortRequest:
		return l.trans.Abort(l.addr, c, &resp)
	case *net.ResumedRequest:
		return l.trans.Resumed(l.addr, c, &resp)
	case *net.MessageRequest:
		return l.trans.Message(l.addr, c, &resp)
	default:
		return fmt.Errorf("unexpected command %T", cmd)
	}
}
