package network

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// fakeSocket serves queued datagrams, then times out like an idle socket.
// Close may race a running read loop.
type fakeSocket struct {
	mu       sync.Mutex
	port     int
	queue    []datagram
	next     int
	closed   bool
	readBuf  int
	deadline time.Time // last SetReadDeadline
	readErr  error     // returned once by the next read
	bufErr   error
}

func newFakeSocket(port int, queue []datagram) *fakeSocket {
	return &fakeSocket{port: port, queue: queue}
}

func (s *fakeSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return 0, nil, net.ErrClosed
	case s.readErr != nil:
		err := s.readErr
		s.readErr = nil
		s.mu.Unlock()
		return 0, nil, err
	case s.next >= len(s.queue):
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeout{}}
	}
	dg := s.queue[s.next]
	s.next++
	s.mu.Unlock()
	return copy(b, dg.Data), dg.Addr, nil
}

func (s *fakeSocket) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next >= len(s.queue)
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) SetReadBuffer(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bufErr != nil {
		return s.bufErr
	}
	s.readBuf = n
	return nil
}

func (s *fakeSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: s.port}
}

// fakeSocketFactory hands out sockets by listen port.
type fakeSocketFactory struct {
	mu      sync.Mutex
	sockets map[int]*fakeSocket
	listens []*net.UDPAddr
	err     error
}

func newFakeSocketFactory(sockets ...*fakeSocket) *fakeSocketFactory {
	f := &fakeSocketFactory{sockets: make(map[int]*fakeSocket)}
	for _, s := range sockets {
		f.sockets[s.port] = s
	}
	return f
}

func (f *fakeSocketFactory) ListenUDP(_ string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listens = append(f.listens, laddr)
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sockets[laddr.Port]
	if !ok {
		return nil, fmt.Errorf("no socket for port %d", laddr.Port)
	}
	return s, nil
}

type timeout struct{}

func (timeout) Error() string   { return "i/o timeout" }
func (timeout) Timeout() bool   { return true }
func (timeout) Temporary() bool { return true }

// fakeCapture replays queued packets and records how replay drove it.
type fakeCapture struct {
	packets []PCAPPacket
	next    int

	openErr   error
	filterErr error
	readErr   error // returned instead of io.EOF at the end

	opened string
	filter string
	closed bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{}
}

func (c *fakeCapture) add(data []byte, ts time.Time, port int) {
	c.packets = append(c.packets, PCAPPacket{Data: data, Timestamp: ts, DstPort: port})
}

func (c *fakeCapture) Open(filename string) error {
	c.opened = filename
	return c.openErr
}

func (c *fakeCapture) SetBPFFilter(filter string) error {
	c.filter = filter
	return c.filterErr
}

func (c *fakeCapture) NextPacket() (*PCAPPacket, error) {
	if c.closed {
		return nil, errors.New("capture closed")
	}
	if c.next >= len(c.packets) {
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	}
	pkt := c.packets[c.next]
	c.next++
	return &pkt, nil
}

func (c *fakeCapture) Close() { c.closed = true }

type fakeCaptureFactory struct {
	capture *fakeCapture
	created int
}

func (f *fakeCaptureFactory) NewReader() PCAPReader {
	f.created++
	return f.capture
}
