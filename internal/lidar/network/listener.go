package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// UDPListener receives MSOP and DIFOP datagrams on their own sockets and
// hands them to a shared Dispatcher.
type UDPListener struct {
	msopAddress    string
	difopAddress   string
	rcvBuf         int
	logInterval    time.Duration
	stats          PacketStatsInterface
	dispatcher     *Dispatcher
	factory        UDPSocketFactory
	disableParsing bool

	mu      sync.Mutex
	sockets []UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	MsopAddress    string // defaults to ":6699"
	DifopAddress   string // empty disables the DIFOP socket
	RcvBuf         int
	LogInterval    time.Duration
	Stats          PacketStatsInterface
	Decoder        Decoder
	Sink           PointSink
	SocketFactory  UDPSocketFactory // defaults to net.ListenUDP
	DisableParsing bool             // count datagrams without decoding them
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	msopAddress := config.MsopAddress
	if msopAddress == "" {
		msopAddress = fmt.Sprintf(":%d", parse.DEFAULT_MSOP_PORT)
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = NewRealUDPSocketFactory()
	}

	l := &UDPListener{
		msopAddress:    msopAddress,
		difopAddress:   config.DifopAddress,
		rcvBuf:         config.RcvBuf,
		logInterval:    logInterval,
		stats:          stats,
		factory:        factory,
		disableParsing: config.DisableParsing || config.Decoder == nil,
	}
	if config.Decoder != nil {
		l.dispatcher = NewDispatcher(config.Decoder, stats, config.Sink)
	}
	return l
}

// Dispatcher returns the dispatcher shared by both sockets, or nil when
// parsing is disabled.
func (l *UDPListener) Dispatcher() *Dispatcher {
	return l.dispatcher
}

func (l *UDPListener) open(address string) (UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", address, err)
	}
	sock, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address %s: %w", address, err)
	}
	if l.rcvBuf > 0 {
		if err := sock.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d on %s: %v", l.rcvBuf, address, err)
		}
	}
	return sock, nil
}

// Start opens the sockets and blocks until ctx is cancelled or a socket
// fails with a non-timeout error.
func (l *UDPListener) Start(ctx context.Context) error {
	addresses := []string{l.msopAddress}
	if l.difopAddress != "" {
		addresses = append(addresses, l.difopAddress)
	}

	var sockets []UDPSocket
	for _, address := range addresses {
		sock, err := l.open(address)
		if err != nil {
			for _, s := range sockets {
				s.Close()
			}
			return err
		}
		sockets = append(sockets, sock)
		log.Printf("UDP listener started on %s with receive buffer %d bytes", address, l.rcvBuf)
	}
	l.mu.Lock()
	l.sockets = sockets
	l.mu.Unlock()
	defer l.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.startStatsLogging(ctx)

	errs := make(chan error, len(sockets))
	for i, sock := range sockets {
		go func(sock UDPSocket, name string) {
			errs <- l.readLoop(ctx, sock, name)
		}(sock, addresses[i])
	}

	var first error
	for range sockets {
		// One failed socket stops the whole listener
		if err := <-errs; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	if first == nil {
		first = ctx.Err()
	}
	log.Print("UDP listener stopped")
	return first
}

func (l *UDPListener) readLoop(ctx context.Context, sock UDPSocket, name string) error {
	buffer := make([]byte, 2048) // 1248 byte records plus margin

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Short deadline so cancellation is noticed promptly
		sock.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, addr, err := sock.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%s: %w", name, err)
			}
			log.Printf("UDP read error on %s: %v", name, err)
			continue
		}

		if err := l.handlePacket(buffer[:n]); err != nil {
			log.Printf("Error handling packet from %v on %s: %v", addr, name, err)
		}
	}
}

// startStatsLogging periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a long
	// silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats(!l.disableParsing)
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats(!l.disableParsing)
		}
	}
}

func (l *UDPListener) handlePacket(packet []byte) error {
	if l.disableParsing {
		l.stats.AddPacket(len(packet))
		return nil
	}
	return l.dispatcher.HandlePacket(packet)
}

// Close closes any open sockets
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, s := range l.sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.sockets = nil
	return errors.Join(errs...)
}
