//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned by ReadPCAPFile in builds without libpcap.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
func ReadPCAPFile(ctx context.Context, pcapFile string, opts ReplayOptions, d *Dispatcher) (ReplaySummary, error) {
	return ReplaySummary{}, ErrPCAPDisabled
}
