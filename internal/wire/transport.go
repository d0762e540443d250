// transport.go is the thin adapter between the flush pipeline and the OS: a
// unicast UDP send, a vectored batched send, or an in-process capture used
// by tests and tooling.  Everything above this file deals in rendered bytes
// only; everything below is syscalls.
//
// The batched path rides golang.org/x/net's message-batch API: on Linux
// WriteBatch submits the whole queue in one sendmmsg call, each message's
// Buffers slice acting as the iovec vector, so line fragments are never
// copied into a contiguous datagram.
//
// © 2025 statline authors. MIT License.

package wire

import (
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Transport abstracts the destination of rendered datagrams.  The flush
// worker is the only caller; implementations need not be safe for concurrent
// use unless documented otherwise.
type Transport interface {
	// Send transmits one datagram and returns the bytes sent.
	Send(buf []byte) (int, error)
	// SendBatch transmits every queued message in as few syscalls as the
	// platform allows and returns the total bytes sent.  The transport fills
	// in the destination address; callers only provide Buffers.
	SendBatch(msgs []ipv4.Message) (int, error)
}

// UDPTransport sends to a fixed remote endpoint from a caller-supplied local
// one.  The socket is held exclusively by the flush worker.
type UDPTransport struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
	pc4  *ipv4.PacketConn
	pc6  *ipv6.PacketConn
}

// NewUDPTransport binds the local endpoint and prepares batch access for the
// destination's address family.
func NewUDPTransport(bind, dst *net.UDPAddr) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", bind)
	if err != nil {
		return nil, err
	}
	t := &UDPTransport{conn: conn, dst: dst}
	if dst.IP.To4() != nil {
		t.pc4 = ipv4.NewPacketConn(conn)
	} else {
		t.pc6 = ipv6.NewPacketConn(conn)
	}
	return t, nil
}

// Send transmits one datagram to the destination.
func (t *UDPTransport) Send(buf []byte) (int, error) {
	return t.conn.WriteToUDP(buf, t.dst)
}

// SendBatch stamps the destination on every message and submits the batch,
// looping until the kernel has accepted all of it.
func (t *UDPTransport) SendBatch(msgs []ipv4.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	total := 0
	for i := range msgs {
		msgs[i].Addr = t.dst
		for _, b := range msgs[i].Buffers {
			total += len(b)
		}
	}
	for sent := 0; sent < len(msgs); {
		var n int
		var err error
		if t.pc4 != nil {
			n, err = t.pc4.WriteBatch(msgs[sent:], 0)
		} else {
			n, err = t.pc6.WriteBatch(msgs[sent:], 0)
		}
		if err != nil {
			return 0, err
		}
		sent += n
	}
	return total, nil
}

// LocalAddr exposes the bound endpoint (useful for tests binding port 0).
func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close releases the socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }

// CaptureTransport collects datagrams in memory instead of sending them.
// Safe for concurrent use; handy in tests.
type CaptureTransport struct {
	mu        sync.Mutex
	datagrams [][]byte
}

// NewCaptureTransport constructs an empty capture.
func NewCaptureTransport() *CaptureTransport {
	return &CaptureTransport{}
}

// Send records a copy of the datagram.
func (t *CaptureTransport) Send(buf []byte) (int, error) {
	t.mu.Lock()
	t.datagrams = append(t.datagrams, append([]byte(nil), buf...))
	t.mu.Unlock()
	return len(buf), nil
}

// SendBatch flattens each message's buffer vector into one recorded
// datagram, exactly as the kernel would.
func (t *CaptureTransport) SendBatch(msgs []ipv4.Message) (int, error) {
	total := 0
	t.mu.Lock()
	for _, m := range msgs {
		var d []byte
		for _, b := range m.Buffers {
			d = append(d, b...)
		}
		t.datagrams = append(t.datagrams, d)
		total += len(d)
	}
	t.mu.Unlock()
	return total, nil
}

// Datagrams returns a snapshot of everything captured so far.
func (t *CaptureTransport) Datagrams() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.datagrams))
	copy(out, t.datagrams)
	return out
}
