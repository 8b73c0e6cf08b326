package parse

// Timing selects how a block's time offset and azimuth delta are derived.
// Single-return packets carry one block per firing; dual-return packets
// carry same-azimuth pairs, so the reference block sits two slots away.
type Timing int

const (
	TimingSingle Timing = iota
	TimingDual
)

// TimingFor picks the strategy for an echo mode. Unknown mode decodes as
// single return.
func TimingFor(e EchoMode) Timing {
	if e.Dual() {
		return TimingDual
	}
	return TimingSingle
}

func (t Timing) String() string {
	if t == TimingDual {
		return "dual"
	}
	return "single"
}

// BlockDuration returns the firing duration of one block in µs.
func (t Timing) BlockDuration(f *Family) float64 {
	if t == TimingDual {
		return f.BlockDurationDual
	}
	return f.BlockDurationSingle
}

// Offset returns the time in µs between block blk and the block before it.
func (t Timing) Offset(f *Family, blk int) float64 {
	switch t {
	case TimingDual:
		if blk%2 == 0 && blk != 0 {
			return f.BlockDurationDual
		}
		return 0
	default:
		if blk > 0 {
			return f.BlockDurationSingle
		}
		return 0
	}
}

// AzimuthDelta returns the rotation in centidegrees covered by block blk,
// measured against its reference block and folded into [0, 36000). In dual
// mode a block with no block two slots away on either side shares the
// delta of its return pair, measured from the pair's first block. When no
// reference block exists inside the packet the delta is 0.
func (t Timing) AzimuthDelta(p MsopPacket, blk int) int {
	n := p.f.BlocksPerPacket
	step := 1
	if t == TimingDual {
		step = 2
	}
	pair := blk &^ 1
	var earlier, later int
	switch {
	case blk+step < n:
		earlier, later = blk, blk+step
	case blk-step >= 0:
		earlier, later = blk-step, blk
	case t == TimingDual && pair+step < n:
		earlier, later = pair, pair+step
	default:
		return 0
	}
	return FoldAzimuth(p.Azimuth(later) - p.Azimuth(earlier))
}

// InBand reports whether a delta is usable: strictly positive and no larger
// than the family limit.
func InBand(f *Family, delta int) bool {
	return delta > 0 && delta <= f.MaxAzimuthDelta
}

// FiringFraction returns the share of the block duration elapsed before
// channel ch fires.
func (t Timing) FiringFraction(f *Family, ch int) float64 {
	seq := ch % f.FiringGroup
	if t == TimingDual {
		return f.ChannelTOffset * float64(seq) / f.BlockDurationDual
	}
	return (f.FiringTDuration*float64(ch/f.FiringGroup) + f.ChannelTOffset*float64(seq)) / f.BlockDurationSingle
}
