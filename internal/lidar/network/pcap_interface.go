package network

import "time"

// PCAPPacket is the UDP payload of one captured datagram.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time // capture time
	DstPort   int
}

// PCAPReader abstracts a capture file so replay can be tested without
// libpcap.
type PCAPReader interface {
	Open(filename string) error
	SetBPFFilter(filter string) error

	// NextPacket returns the next UDP payload, or nil and io.EOF at the end
	// of the capture.
	NextPacket() (*PCAPPacket, error)

	Close()
}

// PCAPReaderFactory creates readers.
type PCAPReaderFactory interface {
	NewReader() PCAPReader
}
