package xq

import "go.station.network/s2e/pkg/errors"

// MaxRXJobs is the fixed capacity of the RX FIFO.
const MaxRXJobs = 64

// MaxRXData is the capacity in bytes of the RX payload sliding window.
const MaxRXData = 8192

var errRXFull = errors.Define("rx_fifo_full", "RX FIFO exhausted even after compaction")

// RXJob is one uplink queued for upstream forwarding (spec.md §3 "RX job").
type RXJob struct {
	RCtx   int64
	XTime  int64
	FineTS int64 // -1 if unavailable
	Freq   uint32
	DR     int
	RSSI   int32 // stored negated
	SNR    int32 // stored ×4
	Off    int
	Len    int
}

// Score returns the mirror-frame comparison score 8·snr - rssi (spec.md
// §4.6), operating on the stored fixed-point representation.
func (j *RXJob) Score() int32 {
	snr := float64(j.SNR) / 4
	rssi := float64(-j.RSSI)
	return int32((8*snr - rssi) * 4)
}

// RXFifo is the two-index, in-place-compacted uplink queue.
type RXFifo struct {
	jobs  [MaxRXJobs]RXJob
	first int
	next  int

	data [MaxRXData]byte
	tail int // write cursor into data, always == jobs[next-1].off+len once committed
}

// NewRXFifo returns an empty FIFO.
func NewRXFifo() *RXFifo { return &RXFifo{} }

// Len returns the number of committed jobs.
func (f *RXFifo) Len() int { return f.next - f.first }

// First returns the index of the oldest committed job.
func (f *RXFifo) First() int { return f.first }

// NextIndex returns the index the next reservation will receive.
func (f *RXFifo) NextIndex() int { return f.next }

// Job returns a mutable pointer to the committed or reserved job at idx.
func (f *RXFifo) Job(idx int) *RXJob { return &f.jobs[idx] }

// DataSlice returns the arena bytes for a job's [off, off+len) region.
func (f *RXFifo) DataSlice(off, n int) []byte { return f.data[off : off+n] }

// NextJob returns a writable slot at index f.next with room for maxlen
// payload bytes, compacting the used span to index 0 and retrying once if
// either array is full.
func (f *RXFifo) NextJob(maxlen int) (int, error) {
	if f.next >= MaxRXJobs || f.tail+maxlen > MaxRXData {
		f.compact()
		if f.next >= MaxRXJobs || f.tail+maxlen > MaxRXData {
			return 0, errRXFull.New()
		}
	}
	f.jobs[f.next] = RXJob{Off: f.tail}
	return f.next, nil
}

// CommitJob finalises the reservation at idx (which must equal NextIndex())
// with the given payload length, advancing next.
func (f *RXFifo) CommitJob(idx, length int) error {
	if idx != f.next {
		return errors.Define("rx_not_next", "job `{idx}` is not the next reservation slot").WithAttributes("idx", idx)
	}
	f.jobs[idx].Len = length
	f.tail += length
	f.next++
	return nil
}

// DropJob removes a committed slot (used only to discard mirror losers):
// trailing data and jobs are shifted down and trailing offsets decremented
// by the dropped length, preserving the sliding-window layout invariant.
func (f *RXFifo) DropJob(idx int) error {
	if idx < f.first || idx >= f.next {
		return errors.Define("rx_not_committed", "job `{idx}` is not committed").WithAttributes("idx", idx)
	}
	dropped := f.jobs[idx]
	copy(f.data[dropped.Off:], f.data[dropped.Off+dropped.Len:f.tail])
	f.tail -= dropped.Len
	for i := idx + 1; i < f.next; i++ {
		f.jobs[i-1] = f.jobs[i]
		f.jobs[i-1].Off -= dropped.Len
	}
	f.next--
	return nil
}

// compact shifts the committed span [first, next) down to index 0 in both
// the job array and the data arena.
func (f *RXFifo) compact() {
	if f.first == 0 {
		return
	}
	baseOff := f.jobs[f.first].Off
	n := f.next - f.first
	for i := 0; i < n; i++ {
		f.jobs[i] = f.jobs[f.first+i]
		f.jobs[i].Off -= baseOff
	}
	dataLen := f.tail - baseOff
	copy(f.data[:], f.data[baseOff:f.tail])
	f.first = 0
	f.next = n
	f.tail = dataLen
}

// PopFront removes and returns the oldest committed job, for the flush loop
// which forwards jobs one at a time. It does not compact the arena; a later
// NextJob call compacts when it runs out of room.
func (f *RXFifo) PopFront() (RXJob, bool) {
	if f.first >= f.next {
		return RXJob{}, false
	}
	j := f.jobs[f.first]
	f.first++
	if f.first == f.next {
		// Queue drained; reclaim the whole arena instead of waiting for a
		// future NextJob to discover it needs to.
		f.first, f.next, f.tail = 0, 0, 0
	}
	return j, true
}
