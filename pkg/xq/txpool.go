// Package xq implements the pooled, compacting job queues the core uses for
// both directions of traffic: a priority-ordered, singly-linked TX job pool
// per TX unit with an out-of-band payload arena (txpool.go), and a
// fixed-capacity RX FIFO with an in-place-compacted arena (rxfifo.go).
//
// Both structures trade a small, frequent memmove for a simple invariant:
// the arena's tail is always free space, so reservation never needs a
// free-list of byte ranges, only of job slots.
package xq

import "go.station.network/s2e/pkg/errors"

// JobIndex is a typed index into a job pool. NilIndex marks "not in any
// list"; it replaces the source's raw pointer-into-array-or-NULL idiom.
type JobIndex uint8

// NilIndex is the sentinel for "no next job" / "not queued".
const NilIndex JobIndex = 0xFF

// MaxTXJobs is the fixed capacity of the TX job pool (one shared across all
// TX units' queues plus the free list).
const MaxTXJobs = 128

// MaxTXData is the capacity in bytes of the TX payload arena.
const MaxTXData = 16384

// TXFlag bits, see spec.md §3 "TX job".
type TXFlag uint16

const (
	TXFlagClassA TXFlag = 1 << iota
	TXFlagClassB
	TXFlagClassC
	TXFlagBeacon
	TXFlagTXing
	TXFlagTXChecked
)

var (
	errPoolFull  = errors.Define("tx_pool_full", "TX job pool exhausted")
	errDataFull  = errors.Define("tx_data_full", "TX payload arena exhausted")
	errNotHead   = errors.Define("not_free_head", "job `{idx}` is not the free-list head")
	errNilOffset = errors.Define("nil_offset", "job `{idx}` has no data offset")
)

// TXJob is one downlink to transmit (spec.md §3 "TX job").
type TXJob struct {
	Next JobIndex // list link; NilIndex while unlinked

	Diid     uint64
	DevEUI   uint64
	HasEUI   bool // false for beacons and dnsched entries lacking DevEUI
	TxUnit   int
	HostUS   int64 // absolute host-µs fire time
	XTime    int64 // radio-xtime equivalent
	GPSTime  int64 // 0 if unset

	Freq     uint32
	DR       int
	RX2Freq  uint32
	RX2DR    int
	RXChIdx  [2]int // RX1, RX2 down-channel indices

	TXPowDeci int32 // transmit power ×10 dBm
	AirtimeUS uint32
	Preamble  int
	AddCRC    bool

	Flags       TXFlag
	Priority    uint8
	Retries     int
	AltAnts     uint16 // remaining alternate-antenna bitmap
	RCtx        int64
	SwitchedRX2 bool // alt_tx_time has already moved this job to RX2

	Off int // offset into the data arena, -1 if unset
	Len int
}

// IsTXing reports whether the job has been submitted to the radio.
func (j *TXJob) IsTXing() bool { return j.Flags&TXFlagTXing != 0 }

// IsChecked reports whether TX status has been confirmed (dntxed emitted).
func (j *TXJob) IsChecked() bool { return j.Flags&TXFlagTXChecked != 0 }

// TXPool is the fixed-capacity, pooled allocator for TX jobs plus their
// shared payload arena.
type TXPool struct {
	jobs     [MaxTXJobs]TXJob
	freeHead JobIndex

	data      [MaxTXData]byte
	dataInUse int
}

// NewTXPool returns a pool with every slot on the free list, in ascending
// index order.
func NewTXPool() *TXPool {
	p := &TXPool{}
	for i := 0; i < MaxTXJobs; i++ {
		p.jobs[i] = TXJob{Off: -1, Next: JobIndex(i + 1)}
	}
	p.jobs[MaxTXJobs-1].Next = NilIndex
	p.freeHead = 0
	return p
}

// Job returns a mutable pointer to the job at idx.
func (p *TXPool) Job(idx JobIndex) *TXJob { return &p.jobs[idx] }

// DataInUse returns the number of committed payload bytes currently held.
func (p *TXPool) DataInUse() int { return p.dataInUse }

// ReserveJob returns a handle to a free slot, pre-zeroed except for the
// free-list link, without removing it from the free list yet. Fails if the
// free list is empty.
func (p *TXPool) ReserveJob() (JobIndex, *TXJob, error) {
	if p.freeHead == NilIndex {
		return NilIndex, nil, errPoolFull.New()
	}
	idx := p.freeHead
	next := p.jobs[idx].Next
	off := p.jobs[idx].Off
	p.jobs[idx] = TXJob{Off: off, Next: next}
	return idx, &p.jobs[idx], nil
}

// ReserveData returns the offset of a contiguous, writable region of maxlen
// bytes at the arena tail. It does not consume space; CommitJob finalises
// the allocation for the length the caller actually used.
func (p *TXPool) ReserveData(maxlen int) (int, error) {
	if p.dataInUse+maxlen > MaxTXData {
		return 0, errDataFull.New()
	}
	return p.dataInUse, nil
}

// DataSlice returns the writable arena region starting at off, of length n.
func (p *TXPool) DataSlice(off, n int) []byte { return p.data[off : off+n] }

// CommitJob removes idx from the free list (it must be the current head)
// and finalises its payload length, advancing the in-use watermark.
func (p *TXPool) CommitJob(idx JobIndex, length int) error {
	if idx != p.freeHead {
		return errNotHead.WithAttributes("idx", idx)
	}
	job := &p.jobs[idx]
	p.freeHead = job.Next
	job.Off = p.dataInUse
	job.Len = length
	job.Next = NilIndex
	p.dataInUse += length
	return nil
}

// FreeJob returns idx to the free list. If it owns arena bytes, later bytes
// are compacted down and every other committed job's offset referencing
// arena positions past the freed region is decremented in lock-step,
// preserving "tail == free space".
func (p *TXPool) FreeJob(idx JobIndex) error {
	job := &p.jobs[idx]
	if job.Off >= 0 {
		freedOff, freedLen := job.Off, job.Len
		copy(p.data[freedOff:], p.data[freedOff+freedLen:p.dataInUse])
		p.dataInUse -= freedLen
		for i := range p.jobs {
			if JobIndex(i) == idx {
				continue
			}
			other := &p.jobs[i]
			if other.Off > freedOff {
				other.Off -= freedLen
			}
		}
	}
	job.Off = -1
	job.Len = 0
	job.Next = p.freeHead
	p.freeHead = idx
	return nil
}

// InsertJob prepends idx to the list rooted at *head.
func InsertJob(head *JobIndex, pool *TXPool, idx JobIndex) {
	pool.Job(idx).Next = *head
	*head = idx
}

// UnqueueJob pops the front of the list rooted at *head, returning NilIndex
// if it is empty.
func UnqueueJob(head *JobIndex, pool *TXPool) JobIndex {
	if *head == NilIndex {
		return NilIndex
	}
	idx := *head
	*head = pool.Job(idx).Next
	pool.Job(idx).Next = NilIndex
	return idx
}

// RemoveJob unlinks target from wherever it sits in the list rooted at
// *head (not necessarily the front), for the scheduler's conflict-
// resolution displacement path. Reports whether target was found.
func RemoveJob(head *JobIndex, pool *TXPool, target JobIndex) bool {
	if *head == target {
		*head = pool.Job(target).Next
		pool.Job(target).Next = NilIndex
		return true
	}
	for i := *head; i != NilIndex; i = pool.Job(i).Next {
		if pool.Job(i).Next == target {
			pool.Job(i).Next = pool.Job(target).Next
			pool.Job(target).Next = NilIndex
			return true
		}
	}
	return false
}

// InsertSorted inserts idx into the list rooted at *head at the position
// preserving ascending HostUS order (spec.md §4.5 "Insert into the unit's
// queue at the position preserving ascending txtime").
func InsertSorted(head *JobIndex, pool *TXPool, idx JobIndex) {
	job := pool.Job(idx)
	if *head == NilIndex || pool.Job(*head).HostUS > job.HostUS {
		job.Next = *head
		*head = idx
		return
	}
	prev := *head
	for pool.Job(prev).Next != NilIndex && pool.Job(pool.Job(prev).Next).HostUS <= job.HostUS {
		prev = pool.Job(prev).Next
	}
	job.Next = pool.Job(prev).Next
	pool.Job(prev).Next = idx
}

// FreeCount returns the number of slots currently on the free list, for
// invariant checks (spec.md §8 property 1).
func (p *TXPool) FreeCount() int {
	n := 0
	for i := p.freeHead; i != NilIndex; i = p.jobs[i].Next {
		n++
	}
	return n
}

// QueueLen returns the number of jobs reachable from head, for invariant
// checks.
func (p *TXPool) QueueLen(head JobIndex) int {
	n := 0
	for i := head; i != NilIndex; i = p.jobs[i].Next {
		n++
	}
	return n
}
