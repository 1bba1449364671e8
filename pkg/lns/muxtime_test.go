package lns

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"
)

func TestMuxTimeStateZeroValueIsInvalid(t *testing.T) {
	a := assertions.New(t)
	var m MuxTimeState
	a.So(m.Now(123), should.Equal, float64(0))
}

func TestMuxTimeStateZeroUpdateIsIgnored(t *testing.T) {
	a := assertions.New(t)
	var m MuxTimeState
	m.Update(0, 5_000_000)
	a.So(m.Now(5_000_000), should.Equal, float64(0))
}

func TestMuxTimeStateTracksHostClockAdvance(t *testing.T) {
	a := assertions.New(t)
	var m MuxTimeState
	m.Update(10.0, 10_000_000) // wire says 10s, host clock reads 10_000_000us
	a.So(m.Now(10_000_000), should.Equal, 10.0)

	// 2.5s later on the host clock, the derived MuxTime estimate advances
	// by the same amount.
	a.So(m.Now(12_500_000), should.Equal, 12.5)
}

func TestMuxTimeStateLatestUpdateWins(t *testing.T) {
	a := assertions.New(t)
	var m MuxTimeState
	m.Update(10.0, 10_000_000)
	m.Update(20.0, 10_000_000) // LNS re-synced; offset shifts accordingly
	a.So(m.Now(10_000_000), should.Equal, 20.0)
}
