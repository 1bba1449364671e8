// Package rxforward implements uplink admission and forwarding (spec.md
// §4.6): mirror-frame dedup of RX jobs captured twice by adjacent
// channels, an allowlist filter on JoinEUI ranges and NetID, and a
// backpressure-aware flush to the LNS transport.
package rxforward

// MType is the LoRaWAN MAC message type, the top 3 bits of MHDR.
type MType uint8

const (
	MTypeJoinRequest MType = iota
	MTypeJoinAccept
	MTypeUnconfirmedUp
	MTypeUnconfirmedDown
	MTypeConfirmedUp
	MTypeConfirmedDown
	MTypeRejoin
	MTypeProprietary
)

func mtypeOf(b byte) MType { return MType(b >> 5) }

// parsedHeader is the subset of a PHYPayload's MAC header the admission
// filter needs, decoded without touching FOpts/FRMPayload/MIC.
type parsedHeader struct {
	MType   MType
	JoinEUI uint64
	DevEUI  uint64
	DevAddr uint32
	FCnt    uint16
	ok      bool
}

func parseHeader(payload []byte) parsedHeader {
	if len(payload) < 1 {
		return parsedHeader{}
	}
	mtype := mtypeOf(payload[0])
	switch mtype {
	case MTypeJoinRequest:
		if len(payload) < 23 {
			return parsedHeader{MType: mtype}
		}
		return parsedHeader{
			MType:   mtype,
			JoinEUI: le64(payload[1:9]),
			DevEUI:  le64(payload[9:17]),
			ok:      true,
		}
	case MTypeUnconfirmedUp, MTypeConfirmedUp:
		if len(payload) < 12 {
			return parsedHeader{MType: mtype}
		}
		return parsedHeader{
			MType:   mtype,
			DevAddr: le32(payload[1:5]),
			FCnt:    le16(payload[6:8]),
			ok:      true,
		}
	default:
		return parsedHeader{MType: mtype, ok: true}
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// netIDOf returns the 7-bit NetID prefix of a class-0 DevAddr (spec.md §4.6
// "NetID is the address's top 7 bits").
func netIDOf(devAddr uint32) byte {
	return byte(devAddr>>25) & 0x7F
}

// JoinEUIRange is one inclusive allowlist range (spec.md §4.6 "JoinEUI
// allowlist ranges").
type JoinEUIRange struct {
	Lo, Hi uint64
}

// Filter is the admission policy applied before a frame is even queued:
// join-requests are checked against JoinEUIRanges, data uplinks against a
// 128-entry NetID bitmap. An empty/all-false policy allows everything,
// matching "no filter configured" (spec.md §4.6, §6.3 "the default
// station.conf carries no JoinEui/NetID filter").
type Filter struct {
	JoinEUIRanges []JoinEUIRange
	NetIDs        [128]bool
}

func (f *Filter) netIDFilterActive() bool {
	for _, b := range f.NetIDs {
		if b {
			return true
		}
	}
	return false
}

// Allows reports whether payload should be admitted to the RX FIFO.
func (f *Filter) Allows(payload []byte) bool {
	h := parseHeader(payload)
	if !h.ok {
		return false
	}
	switch h.MType {
	case MTypeJoinRequest:
		if len(f.JoinEUIRanges) == 0 {
			return true
		}
		for _, r := range f.JoinEUIRanges {
			if h.JoinEUI >= r.Lo && h.JoinEUI <= r.Hi {
				return true
			}
		}
		return false
	case MTypeUnconfirmedUp, MTypeConfirmedUp:
		if !f.netIDFilterActive() {
			return true
		}
		return f.NetIDs[netIDOf(h.DevAddr)]
	default:
		return true
	}
}
