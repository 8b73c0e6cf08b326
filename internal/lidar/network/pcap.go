//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// gopacketReader implements PCAPReader over libpcap offline handles.
type gopacketReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

func (r *gopacketReader) Open(filename string) error {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return err
	}
	r.handle = handle
	r.source = gopacket.NewPacketSource(handle, handle.LinkType())
	r.source.NoCopy = true
	return nil
}

func (r *gopacketReader) SetBPFFilter(filter string) error {
	return r.handle.SetBPFFilter(filter)
}

// NextPacket skips frames without a UDP payload, which the BPF filter
// should already have removed.
func (r *gopacketReader) NextPacket() (*PCAPPacket, error) {
	for {
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("decoding capture frame: %w", err)
		}
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		return &PCAPPacket{
			Data:      udp.Payload,
			Timestamp: packet.Metadata().Timestamp,
			DstPort:   int(udp.DstPort),
		}, nil
	}
}

func (r *gopacketReader) Close() {
	if r.handle != nil {
		r.handle.Close()
	}
}

// GopacketReaderFactory creates libpcap-backed readers.
type GopacketReaderFactory struct{}

// NewReader returns an unopened reader.
func (GopacketReaderFactory) NewReader() PCAPReader {
	return &gopacketReader{}
}

// ReadPCAPFile replays a capture file through d.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, opts ReplayOptions, d *Dispatcher) (ReplaySummary, error) {
	return Replay(ctx, GopacketReaderFactory{}, pcapFile, opts, d)
}
