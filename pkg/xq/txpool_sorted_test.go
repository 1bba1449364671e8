package xq

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInsertSortedOrdersByHostUS(t *testing.T) {
	cases := []struct {
		name  string
		times []int64 // HostUS of each job, inserted in this order
		want  []int64 // resulting HostUS order from head to tail
	}{
		{
			name:  "ascending insert stays ascending",
			times: []int64{10, 20, 30},
			want:  []int64{10, 20, 30},
		},
		{
			name:  "descending insert reverses to ascending",
			times: []int64{30, 20, 10},
			want:  []int64{10, 20, 30},
		},
		{
			name:  "new earliest job becomes head",
			times: []int64{20, 30, 10},
			want:  []int64{10, 20, 30},
		},
		{
			name:  "equal HostUS ties insert after existing equals",
			times: []int64{10, 10, 10},
			want:  []int64{10, 10, 10},
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			p := NewTXPool()
			var head JobIndex = NilIndex
			for _, hostUS := range c.times {
				idx, job, err := p.ReserveJob()
				if err != nil {
					t.Fatalf("ReserveJob: %v", err)
				}
				if _, err := p.ReserveData(0); err != nil {
					t.Fatalf("ReserveData: %v", err)
				}
				if err := p.CommitJob(idx, 0); err != nil {
					t.Fatalf("CommitJob: %v", err)
				}
				job.HostUS = hostUS
				InsertSorted(&head, p, idx)
			}

			var got []int64
			for i := head; i != NilIndex; i = p.Job(i).Next {
				got = append(got, p.Job(i).HostUS)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("queue order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
