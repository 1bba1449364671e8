package timesync

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetTimesyncSampleShape(t *testing.T) {
	cases := []struct {
		name       string
		ticks      uint32
		ppsTicks   uint32
		ppsFresh   bool
		ppsEnabled bool
		lastXTime  int64
		want       Sample
	}{
		{
			name:      "no PPS configured leaves PPSXTime zero",
			ticks:     1000,
			lastXTime: 0,
			want:      Sample{HostUS: 1000, XTime: 1000},
		},
		{
			name:       "stale PPS edge leaves PPSXTime zero",
			ticks:      1000,
			ppsTicks:   500,
			ppsFresh:   false,
			ppsEnabled: true,
			lastXTime:  0,
			want:       Sample{HostUS: 1000, XTime: 1000},
		},
		{
			name:       "fresh PPS edge is extended into xtime",
			ticks:      1000,
			ppsTicks:   500,
			ppsFresh:   true,
			ppsEnabled: true,
			lastXTime:  0,
			want:       Sample{HostUS: 1000, XTime: 1000, PPSXTime: 500},
		},
	}

	now := func() int64 { return 1000 }
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			clock := &fakeClock{ticks: c.ticks, ppsTicks: c.ppsTicks, ppsFresh: c.ppsFresh}
			got, _, err := GetTimesync(clock, now, c.lastXTime, c.ppsEnabled)
			if err != nil {
				t.Fatalf("GetTimesync: %v", err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("sample mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
