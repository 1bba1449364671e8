// Package beacon generates Class-B beacon frames (spec.md §4.7): a
// 128-second GPS-epoch cadence, frequency-table rotation per emission, and
// suspend/resume behaviour when the GPS-correlated time sync goes stale.
package beacon

import "go.station.network/s2e/pkg/errors"

// IntervalUS is the Class-B beacon period: 128 seconds, fixed by the
// LoRaWAN specification.
const IntervalUS int64 = 128 * 1000000

// defaultLayout is the frame layout used until router_config supplies one
// (spec.md §4.7, glossary "Beacon config" layout[3]): a 4-byte time field
// at offset 1 followed by its CRC, a 6-byte lat/lon field at offset 8
// followed by its CRC, 16 bytes total.
var defaultLayout = [3]int{1, 8, 16}

var errNotActive = errors.Define("beacon_not_active", "beacon is not in the active state")

// Status is the beacon's readiness state machine (spec.md §4.7).
type Status int

const (
	// StatusNoTime: no GPS-correlated time sync has ever been observed.
	StatusNoTime Status = iota
	// StatusNoPos: time is synced but no lat/lon fix has been set.
	StatusNoPos
	// StatusActive: beacon frames may be generated and scheduled.
	StatusActive
	// StatusSuspended: was active, but the GPS-correlated sample has gone
	// stale past GPSStaleAfterUS; resumes to Active once fresh again.
	StatusSuspended
)

// Beacon holds the rotation table and readiness state for one station's
// Class-B beacon.
type Beacon struct {
	Freqs           []uint32
	freqIdx         int
	Lat, Lon        float64
	HasPos          bool
	Status          Status
	GPSStaleAfterUS int64
	lastGPSUS       int64

	// Layout and DR come from router_config's beacon block (spec.md §4.7
	// "layout", "ctrl" DR nibble); Configure replaces them at runtime.
	Layout [3]int
	DR     int
}

// New returns a Beacon rotating through freqs (falling back to the
// default EU868 beacon frequency if empty), suspending after
// staleAfterUS without a fresh GPS-correlated sample.
func New(freqs []uint32, staleAfterUS int64) *Beacon {
	if len(freqs) == 0 {
		freqs = []uint32{869525000}
	}
	return &Beacon{Freqs: freqs, GPSStaleAfterUS: staleAfterUS, Status: StatusNoTime, Layout: defaultLayout}
}

// Configure applies a router_config beacon block, replacing the frame
// layout and frequency rotation table that subsequent Frame calls use
// (spec.md §4.7, §4.8 router_config beacon config). A zero layout or empty
// freqs leaves the corresponding existing setting untouched, so a
// router_config that omits bcning doesn't blank out prior configuration.
func (b *Beacon) Configure(layout [3]int, freqs []uint32, dr int) {
	if layout != ([3]int{}) {
		b.Layout = layout
	}
	if len(freqs) > 0 {
		b.Freqs = freqs
		b.freqIdx = 0
	}
	b.DR = dr
}

// SetPosition records the station's lat/lon fix, advancing NoTime/NoPos
// readiness if a GPS sample has already arrived.
func (b *Beacon) SetPosition(lat, lon float64) {
	b.Lat, b.Lon = lat, lon
	b.HasPos = true
	if b.Status == StatusNoPos {
		b.Status = StatusActive
	}
}

// NoteGPSSample records a fresh GPS-correlated time sync at host time
// nowUS, advancing NoTime→(NoPos|Active) or resuming Suspended→Active.
func (b *Beacon) NoteGPSSample(nowUS int64) {
	b.lastGPSUS = nowUS
	switch b.Status {
	case StatusNoTime:
		if b.HasPos {
			b.Status = StatusActive
		} else {
			b.Status = StatusNoPos
		}
	case StatusSuspended:
		b.Status = StatusActive
	}
}

// Tick re-evaluates staleness at host time nowUS, suspending an Active
// beacon whose GPS sample has aged past GPSStaleAfterUS.
func (b *Beacon) Tick(nowUS int64) {
	if b.Status == StatusActive && nowUS-b.lastGPSUS > b.GPSStaleAfterUS {
		b.Status = StatusSuspended
	}
}

// NextBeaconGPS returns the GPS-time-µs of the next beacon boundary
// strictly after afterGPSUS.
func NextBeaconGPS(afterGPSUS int64) int64 {
	return (afterGPSUS/IntervalUS + 1) * IntervalUS
}

// Frame builds the beacon payload for the epoch boundary at gpsTimeUS and
// returns it along with the frequency to transmit it on, rotating the
// frequency table on every call. Fails unless the beacon is Active.
func (b *Beacon) Frame(gpsTimeUS int64) ([]byte, uint32, error) {
	if b.Status != StatusActive {
		return nil, 0, errNotActive.New()
	}
	freq := b.Freqs[b.freqIdx]
	b.freqIdx = (b.freqIdx + 1) % len(b.Freqs)

	layout := b.Layout
	if layout == ([3]int{}) {
		layout = defaultLayout
	}
	timeOff, gpsOff := layout[0], layout[1]

	buf := make([]byte, layout[2])
	secs := uint32(gpsTimeUS / 1000000)
	buf[timeOff] = byte(secs)
	buf[timeOff+1] = byte(secs >> 8)
	buf[timeOff+2] = byte(secs >> 16)
	buf[timeOff+3] = byte(secs >> 24)
	crc1 := crc16(buf[:timeOff+4])
	buf[timeOff+4] = byte(crc1)
	buf[timeOff+5] = byte(crc1 >> 8)

	lat := encodeCoord(b.Lat, 90)
	lon := encodeCoord(b.Lon, 180)
	buf[gpsOff] = byte(lat)
	buf[gpsOff+1] = byte(lat >> 8)
	buf[gpsOff+2] = byte(lat >> 16)
	buf[gpsOff+3] = byte(lon)
	buf[gpsOff+4] = byte(lon >> 8)
	buf[gpsOff+5] = byte(lon >> 16)
	crc2 := crc16(buf[gpsOff-1 : gpsOff+6])
	buf[gpsOff+6] = byte(crc2)
	buf[gpsOff+7] = byte(crc2 >> 8)

	return buf, freq, nil
}

// encodeCoord packs a coordinate into the LoRaWAN beacon's 24-bit signed
// fixed-point representation, scaled by ±span degrees.
func encodeCoord(deg, span float64) int32 {
	return int32((deg / span) * (1 << 23))
}

// crc16 is the CCITT-FALSE variant (poly 0x1021, init 0xFFFF) the beacon
// CRC fields use.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
