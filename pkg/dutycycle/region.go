// Package dutycycle enforces per-region regulatory caps on when a frame may
// be emitted: EU868 band-level duty cycle, per-channel duty cycle, and
// CCA/LBT gating (spec.md §4.4).
package dutycycle

// Region identifies a regulatory region table.
type Region int

// Supported regions (spec.md §4.4 region table).
const (
	RegionUnknown Region = iota
	RegionEU868
	RegionIL915
	RegionKR920
	RegionAS923_1
	RegionUS915
	RegionAU915
)

// Band is an EU868 sub-band, each with its own duty-cycle multiplier.
type Band int

// EU868 sub-bands (spec.md §4.4).
const (
	BandDeci  Band = iota // 869.4-869.65 MHz, ×10 airtime blocker (10% duty)
	BandCenti             // 868.0-868.6 ∪ 869.7-870.0 MHz, ×100 (1% duty)
	BandMilli             // everything else, ×1000 (0.1% duty)
)

const numBands = 3

// ClassifyEU868Band returns the sub-band a frequency falls into.
func ClassifyEU868Band(freqHz uint32) Band {
	switch {
	case freqHz >= 869400000 && freqHz <= 869650000:
		return BandDeci
	case (freqHz >= 868000000 && freqHz <= 868600000) || (freqHz >= 869700000 && freqHz <= 870000000):
		return BandCenti
	default:
		return BandMilli
	}
}

func euBandMultiplier(b Band) int64 {
	switch b {
	case BandDeci:
		return 10
	case BandCenti:
		return 100
	default:
		return 1000
	}
}

// RegionParams is the fixed policy table for one region (spec.md §4.4
// region table).
type RegionParams struct {
	DefaultTXPowDeci int32 // ×10 dBm
	HiPowTXPowDeci   int32
	HiPowLoFreq      uint32
	HiPowHiFreq      uint32
	ChannelDCRate    int64 // 0 means no per-channel DC is enforced
	UsesCCA          bool
	EnforceBand      bool // EU868: band-level deadlines gate canTx
	EnforceChannel   bool // KR920/AS923-1: per-channel deadlines gate canTx
}

// Table is the region policy table, indexed by Region.
var Table = map[Region]RegionParams{
	RegionEU868: {
		DefaultTXPowDeci: 160, HiPowTXPowDeci: 270,
		HiPowLoFreq: 869400000, HiPowHiFreq: 869650000,
		ChannelDCRate: 36, EnforceBand: true,
	},
	RegionIL915: {
		DefaultTXPowDeci: 140, HiPowTXPowDeci: 200,
		HiPowLoFreq: 916200000, HiPowHiFreq: 916400000,
		ChannelDCRate: 100,
	},
	RegionKR920: {
		DefaultTXPowDeci: 230, ChannelDCRate: 50,
		UsesCCA: true, EnforceChannel: true,
	},
	RegionAS923_1: {
		DefaultTXPowDeci: 130, ChannelDCRate: 10,
		UsesCCA: true, EnforceChannel: true,
	},
	RegionUS915: {DefaultTXPowDeci: 260},
	RegionAU915: {DefaultTXPowDeci: 300},
	RegionUnknown: {DefaultTXPowDeci: 140},
}

// TXPowerDeci returns the regulatory transmit power (×10 dBm) for a
// frequency in region, applying the high-power band override where one
// exists.
func TXPowerDeci(region Region, freqHz uint32) int32 {
	p := Table[region]
	if p.HiPowHiFreq != 0 && freqHz >= p.HiPowLoFreq && freqHz <= p.HiPowHiFreq {
		return p.HiPowTXPowDeci
	}
	return p.DefaultTXPowDeci
}
