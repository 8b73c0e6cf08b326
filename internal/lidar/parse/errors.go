package parse

import "errors"

// Structural conditions reported by the decoder. All of them are local and
// recoverable: the decoder instance and its calibration state stay usable.
var (
	// ErrSyncMismatch means the leading marker is not the family's MSOP or
	// DIFOP sync. The caller should resynchronise on the next datagram.
	ErrSyncMismatch = errors.New("sync marker mismatch")

	// ErrTruncatedPacket means the buffer is shorter than the fixed record.
	ErrTruncatedPacket = errors.New("truncated packet")

	// ErrChecksumFailure marks a DIFOP intensity-curve blob whose per-channel
	// XOR checksum did not match. The previous curves stay in effect.
	ErrChecksumFailure = errors.New("calibration checksum failure")

	// ErrUnrecognizedField marks a mode or version byte the decoder does not
	// know. A documented fallback is applied instead.
	ErrUnrecognizedField = errors.New("unrecognized field value")

	// ErrTableShape rejects externally supplied tables whose dimensions do
	// not match the sensor family.
	ErrTableShape = errors.New("calibration table shape mismatch")
)

// First-azimuth values reported by DecodeMsop when no azimuth was read.
const (
	AzimuthTruncated    = -1 // with ErrTruncatedPacket
	AzimuthSyncMismatch = -2 // with ErrSyncMismatch
)
