package timesync

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/smartystreets/assertions/should"
)

func TestXticksWraparound(t *testing.T) {
	a := assertions.New(t)
	cases := []int64{0, 100, 1 << 31, 1<<32 - 1, 1 << 40}
	deltas := []int64{0, 1, -1, 1000000, -1000000, 1<<31 - 1, -(1 << 31)}
	for _, last := range cases {
		for _, d := range deltas {
			xticks := uint32(uint64(int64(uint32(last)) + d))
			got := XticksToXtime(xticks, last)
			want := last + d
			a.So(got, should.Equal, want)
		}
	}
}

type fakeClock struct {
	ticks    uint32
	ppsTicks uint32
	ppsFresh bool
}

func (f *fakeClock) ReadTicks() (uint32, error) { return f.ticks, nil }
func (f *fakeClock) ReadPPSTicks() (uint32, bool, error) {
	return f.ppsTicks, f.ppsFresh, nil
}

func TestEngineRoundTrip(t *testing.T) {
	a := assertions.New(t)
	e := NewEngine()
	e.StartSession(0)

	seq := []int64{1000, 1001, 1002}
	i := 0
	now := func() int64 {
		v := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return v
	}

	clock := &fakeClock{ticks: 500}
	sample, quality, err := GetTimesync(clock, now, e.LastXTime(0), false)
	a.So(err, should.BeNil)
	a.So(quality > 0, should.BeTrue)

	e.UpdateTimesync(0, quality, sample)
	a.So(e.Synced(0), should.BeTrue)

	xt := e.UstimeToXtime(0, 5000)
	a.So(xt, should.NotEqual, int64(0))
	back := e.XtimeToUstime(xt)
	a.So(back, should.Equal, int64(5000))
}

func TestUnsyncedReturnsZero(t *testing.T) {
	a := assertions.New(t)
	e := NewEngine()
	a.So(e.UstimeToXtime(3, 123), should.Equal, int64(0))
	a.So(e.XtimeToUstime(0), should.Equal, int64(0))
	a.So(e.RequireSynced(3), should.NotBeNil)
}

func TestGPSStalenessAndRetarget(t *testing.T) {
	a := assertions.New(t)
	e := NewEngine()
	e.StartSession(0)
	e.StartSession(1)

	clock := &fakeClock{ticks: 0}
	now := func() int64 { return 1000 }
	sample, quality, _ := GetTimesync(clock, now, e.LastXTime(0), false)
	e.UpdateTimesync(0, quality, sample)
	sample1, quality1, _ := GetTimesync(clock, now, e.LastXTime(1), false)
	e.UpdateTimesync(1, quality1, sample1)

	e.ProcessTimesyncLNS(0, 1000, 1000, 500000000)
	a.So(e.XtimeToGpstime(sample.XTime, 1000), should.Equal, int64(500000000))
	a.So(e.XtimeToGpstime(sample.XTime, 1000+PPSValidInterval+1), should.Equal, int64(0))

	xt0 := e.UstimeToXtime(0, 9000)
	xt1 := e.XtimeToXtime(xt0, 1)
	a.So(Session(xt1), should.Equal, uint8(1))
	a.So(e.XtimeToUstime(xt1), should.Equal, int64(9000))
}
