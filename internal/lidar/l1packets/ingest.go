package l1packets

import (
	"github.com/banshee-data/rslidar/internal/lidar/network"
	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// Type aliases re-export packet ingestion and decoding types from the
// network/ and parse/ subpackages so callers can depend on l1packets alone.

// Ingestion types (from network/).

// UDPListener receives MSOP and DIFOP datagrams over UDP.
type UDPListener = network.UDPListener

// UDPListenerConfig configures the UDP listener.
type UDPListenerConfig = network.UDPListenerConfig

// Dispatcher routes datagrams to a decoder by sync marker.
type Dispatcher = network.Dispatcher

// PointSink receives decoded points per packet.
type PointSink = network.PointSink

// ReplayOptions controls PCAP replay.
type ReplayOptions = network.ReplayOptions

// ReplaySummary describes a finished replay.
type ReplaySummary = network.ReplaySummary

// Constructor re-exports.

var (
	NewUDPListener = network.NewUDPListener
	NewDispatcher  = network.NewDispatcher
	ReadPCAPFile   = network.ReadPCAPFile
)

// Decoding types (from parse/).

// Decoder decodes MSOP and DIFOP records for one sensor.
type Decoder = parse.Decoder

// DecoderConfig holds range and angle limits for a Decoder.
type DecoderConfig = parse.Config

// Family is the per-model constant bundle.
type Family = parse.Family

// DifopStatus summarises one applied DIFOP record.
type DifopStatus = parse.DifopStatus

// CalibrationTables carries externally loaded calibration.
type CalibrationTables = parse.CalibrationTables

var (
	NewDecoder         = parse.NewDecoder
	LookupFamily       = parse.LookupFamily
	LoadCalibrationDir = parse.LoadCalibrationDir
)

// NewSensor builds a decoder for the named model with cfg and, when dir is
// not empty, installs the calibration files found there.
func NewSensor(model string, cfg DecoderConfig, dir string) (*Decoder, error) {
	f, err := parse.LookupFamily(model)
	if err != nil {
		return nil, err
	}
	dec := parse.NewDecoder(f, cfg)
	if dir == "" {
		return dec, nil
	}
	tables, err := parse.LoadCalibrationDir(f, dir)
	if err != nil {
		return nil, err
	}
	if err := dec.SetCalibrationTables(*tables); err != nil {
		return nil, err
	}
	return dec, nil
}
