package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// keepAlive is the TCP keep-alive period of links between servers. Links are
// long-lived and mostly idle between migrations.
const keepAlive = 30 * time.Second

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// StreamLayer is used with the NetworkTransport to provide the low level stream
// abstraction.
type StreamLayer interface {
	net.Listener

	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the publicly-reachable address of the stream
	AdvertiseAddr() string
}

// TCPStreamLayer is the StreamLayer of a server listening on plain TCP. The
// listener provides Accept, Close and Addr.
type TCPStreamLayer struct {
	*net.TCPListener
	advertise string
}

// NewTCPStreamLayer listens on bindAddr. Neighbors reach this server at
// advertise, or at the bound address when advertise is empty; either must be
// a concrete TCP address.
func NewTCPStreamLayer(bindAddr, advertise string) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	stream := &TCPStreamLayer{
		TCPListener: list.(*net.TCPListener),
		advertise:   advertise,
	}

	if err := stream.checkAdvertise(); err != nil {
		list.Close()
		return nil, err
	}
	return stream, nil
}

func (t *TCPStreamLayer) checkAdvertise() error {
	var addr net.Addr = t.Addr()
	if t.advertise != "" {
		resolved, err := net.ResolveTCPAddr("tcp", t.advertise)
		if err != nil {
			return err
		}
		addr = resolved
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		return errNotAdvertisable
	}
	return nil
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: keepAlive,
	}
	return dialer.Dial("tcp", address)
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.Addr().String()
}

// NewTCPTransport returns a NetworkTransport on a TCPStreamLayer.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := NewTCPStreamLayer(bindAddr, advertise)
	if err != nil {
		return nil, err
	}
	return NewNetworkTransport(stream, maxPool, timeout, logger), nil
}
