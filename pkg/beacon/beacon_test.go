package beacon

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"
)

func TestReadinessTransitionsThroughNoTimeNoPos(t *testing.T) {
	a := assertions.New(t)
	b := New(nil, 10_000_000)
	a.So(b.Status, should.Equal, StatusNoTime)

	b.NoteGPSSample(1000)
	a.So(b.Status, should.Equal, StatusNoPos)

	b.SetPosition(45.0, -122.0)
	a.So(b.Status, should.Equal, StatusActive)
}

func TestSetPositionBeforeGPSSampleWaitsForTime(t *testing.T) {
	a := assertions.New(t)
	b := New(nil, 10_000_000)
	b.SetPosition(1, 1)
	a.So(b.Status, should.Equal, StatusNoTime)

	b.NoteGPSSample(1000)
	a.So(b.Status, should.Equal, StatusActive)
}

func TestSuspendAndResumeOnGPSStaleness(t *testing.T) {
	a := assertions.New(t)
	b := New(nil, 10_000_000)
	b.SetPosition(1, 1)
	b.NoteGPSSample(0)
	a.So(b.Status, should.Equal, StatusActive)

	b.Tick(10_000_001)
	a.So(b.Status, should.Equal, StatusSuspended)

	b.NoteGPSSample(10_000_001)
	a.So(b.Status, should.Equal, StatusActive)
}

func TestFrameRotatesFrequencyTable(t *testing.T) {
	a := assertions.New(t)
	b := New([]uint32{923400000, 923800000}, 10_000_000)
	b.SetPosition(0, 0)
	b.NoteGPSSample(0)

	_, f1, err := b.Frame(IntervalUS)
	a.So(err, should.BeNil)
	_, f2, err := b.Frame(2 * IntervalUS)
	a.So(err, should.BeNil)
	_, f3, err := b.Frame(3 * IntervalUS)
	a.So(err, should.BeNil)

	a.So(f1, should.Equal, uint32(923400000))
	a.So(f2, should.Equal, uint32(923800000))
	a.So(f3, should.Equal, uint32(923400000))
}

func TestFrameRejectedWhenNotActive(t *testing.T) {
	a := assertions.New(t)
	b := New(nil, 10_000_000)
	_, _, err := b.Frame(0)
	a.So(err, should.NotBeNil)
}

func TestNextBeaconGPSRoundsUpToBoundary(t *testing.T) {
	if got := NextBeaconGPS(0); got != IntervalUS {
		t.Fatalf("got %d want %d", got, IntervalUS)
	}
	if got := NextBeaconGPS(IntervalUS - 1); got != IntervalUS {
		t.Fatalf("got %d want %d", got, IntervalUS)
	}
	if got := NextBeaconGPS(IntervalUS); got != 2*IntervalUS {
		t.Fatalf("got %d want %d", got, 2*IntervalUS)
	}
}
