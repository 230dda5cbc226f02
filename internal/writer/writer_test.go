package writer

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/openbmp/mrt2bmp/internal/bmp"
	"go.uber.org/zap"
)

func newTestWriter(t *testing.T, addr string) *Writer {
	t.Helper()
	return New(addr, 64, 10*time.Millisecond, 100*time.Millisecond, 500*time.Millisecond, zap.NewNop())
}

// readMsg reads one framed BMP message from the connection.
func readMsg(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	hdr := make([]byte, bmp.CommonHeaderSize)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	msgLen := binary.BigEndian.Uint32(hdr[1:5])
	msg := make([]byte, msgLen)
	copy(msg, hdr)
	if _, err := io.ReadFull(conn, msg[bmp.CommonHeaderSize:]); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return msg
}

func TestWriter_InitiationFirstOnConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	w := newTestWriter(t, ln.Addr().String())
	initiation := bmp.Initiation("openbmp-mrt2bmp/test", "test")
	peerUp := bmp.PeerUp(&bmp.PeerHeader{AS: 65001}, [16]byte{}, 0, 179, nil, nil)
	w.SetInitiation(initiation)
	w.UpsertPeerUp("p1", peerUp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if got := readMsg(t, conn); !bytes.Equal(got, initiation) {
		t.Fatal("first message on the wire is not the Initiation")
	}
	if got := readMsg(t, conn); !bytes.Equal(got, peerUp) {
		t.Fatal("second message is not the Peer Up")
	}

	rm := bmp.RouteMonitoring(&bmp.PeerHeader{AS: 65001}, []byte{1, 2, 3})
	if err := w.Enqueue(ctx, rm); err != nil {
		t.Fatal(err)
	}
	if got := readMsg(t, conn); !bytes.Equal(got, rm) {
		t.Fatal("queued message not delivered in order")
	}

	cancel()
	<-done
}

func TestWriter_ReconnectReplaysPreamble(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	w := newTestWriter(t, ln.Addr().String())
	initiation := bmp.Initiation("openbmp-mrt2bmp/test", "test")
	peerUp := bmp.PeerUp(&bmp.PeerHeader{AS: 65001}, [16]byte{}, 0, 179, nil, nil)
	w.SetInitiation(initiation)
	w.UpsertPeerUp("p1", peerUp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	conn1, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	readMsg(t, conn1) // initiation
	readMsg(t, conn1) // peer up
	conn1.Close()

	// Feed messages until the writer notices the dead session and
	// reconnects; messages in flight across the disconnect may be lost.
	feedCtx, feedCancel := context.WithCancel(ctx)
	defer feedCancel()
	go func() {
		rm := bmp.RouteMonitoring(&bmp.PeerHeader{AS: 65001}, []byte{9})
		for feedCtx.Err() == nil {
			w.Enqueue(feedCtx, rm)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	conn2, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()
	feedCancel()

	if got := readMsg(t, conn2); !bytes.Equal(got, initiation) {
		t.Fatal("reconnected session must start with the Initiation")
	}
	if got := readMsg(t, conn2); !bytes.Equal(got, peerUp) {
		t.Fatal("announced Peer Up must be replayed after reconnect")
	}

	cancel()
	<-done
}

func TestWriter_ShutdownDrainsAndTerminates(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	w := newTestWriter(t, ln.Addr().String())
	initiation := bmp.Initiation("openbmp-mrt2bmp/test", "test")
	w.SetInitiation(initiation)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); w.Run(ctx) }()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readMsg(t, conn) // initiation

	rm := bmp.RouteMonitoring(&bmp.PeerHeader{AS: 65001}, []byte{7})
	if err := w.Enqueue(ctx, rm); err != nil {
		t.Fatal(err)
	}
	cancel()
	<-done

	// queued message flushed, then Termination, then close
	first := readMsg(t, conn)
	var sawTermination bool
	for _, msg := range [][]byte{first, readMsg(t, conn)} {
		if msg[5] == bmp.MsgTypeTermination {
			sawTermination = true
		}
	}
	if !sawTermination {
		t.Fatal("no Termination on shutdown")
	}
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF after termination, got %v", err)
	}
}

func TestWriter_RemovePeerDropsFromPreamble(t *testing.T) {
	w := newTestWriter(t, "127.0.0.1:1")
	w.SetInitiation([]byte{3, 0, 0, 0, 6, 4})
	w.UpsertPeerUp("a", []byte{1})
	w.UpsertPeerUp("b", []byte{2})
	w.RemovePeer("a")

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.peerUps["a"]; ok {
		t.Error("removed peer still in preamble")
	}
	if _, ok := w.peerUps["b"]; !ok {
		t.Error("remaining peer lost")
	}
}
