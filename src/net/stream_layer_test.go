package net

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/relay/src/common"
)

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", 1, 0, common.NewTestEntry(t, common.TestLogLevel))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 1, 0, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()

	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestTCPStreamLayer_Dial(t *testing.T) {
	stream, err := NewTCPStreamLayer("127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer stream.Close()

	if stream.AdvertiseAddr() != stream.Addr().String() {
		t.Fatalf("advertise %s, bound %s", stream.AdvertiseAddr(), stream.Addr())
	}

	accepted := make(chan error, 1)
	go func() {
		conn, err := stream.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := stream.Dial(stream.AdvertiseAddr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case err := <-accepted:
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for accept")
	}
}

func TestTCPStreamLayer_BadAdvertise(t *testing.T) {
	if _, err := NewTCPStreamLayer("127.0.0.1:0", "0.0.0.0:1337"); err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}
