package airtime

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"
)

func TestKnownAnswers(t *testing.T) {
	a := assertions.New(t)

	sf7 := MakeRPS(SF7, BW125, false)
	a.So(AirtimeUS(sf7, 20, true, 8), should.Equal, uint32(56576))

	sf12 := MakeRPS(SF12, BW125, false)
	a.So(AirtimeUS(sf12, 20, true, 8), should.Equal, uint32(1318912))

	fsk := MakeRPS(SFFSK, BW125, false)
	a.So(AirtimeUS(fsk, 20, true, 8), should.Equal, uint32(4960))
}

func TestMonotonicInPayloadLength(t *testing.T) {
	a := assertions.New(t)
	rps := MakeRPS(SF9, BW125, false)
	prev := uint32(0)
	for length := 1; length <= 200; length++ {
		cur := AirtimeUS(rps, length, true, 8)
		a.So(cur >= prev, should.BeTrue)
		prev = cur
	}
}

func TestFSKKnownFormula(t *testing.T) {
	a := assertions.New(t)
	fsk := MakeRPS(SFFSK, BW125, false)
	// (len + 11) * 8 / 50000 s -> microseconds.
	a.So(AirtimeUS(fsk, 9, false, 0), should.Equal, uint32((9+11)*8*1000000/50000))
}

func TestSFIndexRoundTrip(t *testing.T) {
	a := assertions.New(t)
	for _, sfIdx := range []RPS{SF7, SF8, SF9, SF10, SF11, SF12} {
		for _, bwIdx := range []RPS{BW125, BW250, BW500} {
			rps := MakeRPS(sfIdx, bwIdx, true)
			a.So(rps.SFIndex(), should.Equal, sfIdx)
			a.So(rps.BWIndex(), should.Equal, bwIdx)
			a.So(rps.DnOnly(), should.BeTrue)
		}
	}
}
