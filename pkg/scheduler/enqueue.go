package scheduler

import "go.station.network/s2e/pkg/xq"

// AddTXJob admits a new downlink (spec.md §4.5 add_txjob): it resolves the
// job's antenna alternatives, rejects jobs scheduled implausibly far
// ahead, retimes a job that arrived with too little runway left, resolves
// a conflict against the unit's in-flight head by trying an alternate
// antenna then an alternate time, and finally inserts in ascending-txtime
// order. hostUS/freq/dr/etc. must already be set on job; payload is
// committed into the pool's arena. Reports the committed index and
// whether the unit's queue head changed (the caller should re-arm its
// timer when it has).
func (s *Scheduler) AddTXJob(txunit int, job xq.TXJob, payload []byte) (xq.JobIndex, bool, error) {
	unit, ok := s.Units[txunit]
	if !ok {
		return xq.NilIndex, false, errUnknownUnit.WithAttributes("unit", txunit)
	}
	job.TxUnit = txunit
	job.AltAnts = unit.AltAntMask

	now := s.Now()
	if job.HostUS > now+TXMaxAheadUS {
		return xq.NilIndex, false, errTooFarAhead.WithAttributes("diid", job.Diid)
	}
	s.recomputeAirtimeAndPow(&job)

	if job.HostUS < now+TXAimGapUS {
		if !s.altTxTime(&job) {
			return xq.NilIndex, false, errTooLate.WithAttributes("diid", job.Diid)
		}
	}

	idx, slot, err := s.Pool.ReserveJob()
	if err != nil {
		return xq.NilIndex, false, err
	}
	off, err := s.Pool.ReserveData(len(payload))
	if err != nil {
		return xq.NilIndex, false, err
	}
	copy(s.Pool.DataSlice(off, len(payload)), payload)
	*slot = job
	if err := s.Pool.CommitJob(idx, len(payload)); err != nil {
		return xq.NilIndex, false, err
	}

	wasEmpty := unit.Head == xq.NilIndex
	headChanged, err := s.resolveHeadConflict(unit, idx)
	if err != nil {
		s.Pool.FreeJob(idx)
		return xq.NilIndex, false, err
	}

	xq.InsertSorted(&unit.Head, s.Pool, idx)
	return idx, wasEmpty || headChanged || unit.Head == idx, nil
}

// resolveHeadConflict checks the new job against the unit's current
// in-flight head (if one is already emitting) and, on overlap, tries an
// alternate antenna then an alternate time for the NEW job (the head is
// already committed to the radio and cannot be moved).
func (s *Scheduler) resolveHeadConflict(unit *Unit, idx xq.JobIndex) (bool, error) {
	if unit.Head == xq.NilIndex {
		return false, nil
	}
	head := s.Pool.Job(unit.Head)
	if !head.IsTXing() {
		return false, nil
	}
	job := s.Pool.Job(idx)
	headEnd := head.HostUS + int64(head.AirtimeUS)
	if job.HostUS >= headEnd+TXMinGapUS {
		return false, nil
	}
	if s.altAntenna(unit, job) {
		return false, nil
	}
	if s.altTxTime(job) {
		return false, nil
	}
	return false, errNoSlot.WithAttributes("diid", job.Diid)
}

// effectivePriority is the conflict-resolution tiebreaker (spec.md §4.5):
// a job that still has an alternate time or antenna available loses ties
// to one that has exhausted its alternatives, since displacing the latter
// would drop it outright.
func effectivePriority(job *xq.TXJob) int {
	p := int(job.Priority)
	if hasAltTime(job) {
		p -= AltTxTimePenalty
	}
	if job.AltAnts != 0 {
		p -= AltAntennaPenalty
	}
	return p
}

func hasAltTime(job *xq.TXJob) bool {
	switch {
	case job.Flags&xq.TXFlagClassC != 0:
		return (job.RX2Freq != 0 && !job.SwitchedRX2) || job.Retries < ClassCBackoffMax
	case job.Flags&xq.TXFlagClassB != 0:
		return false
	default:
		return job.RX2Freq != 0 && !job.SwitchedRX2
	}
}

// altTxTime mutates job to its next alternate firing time per its class
// (spec.md §4.5 alt_tx_time policy), recomputing airtime/power for the new
// frequency/DR where those change. Reports whether an alternative existed.
func (s *Scheduler) altTxTime(job *xq.TXJob) bool {
	switch {
	case job.Flags&xq.TXFlagClassC != 0:
		if job.RX2Freq != 0 && !job.SwitchedRX2 {
			job.Freq = job.RX2Freq
			job.DR = job.RX2DR
			job.SwitchedRX2 = true
			job.Retries = 0
			s.recomputeAirtimeAndPow(job)
			return true
		}
		if job.Retries < ClassCBackoffMax {
			job.Retries++
			job.HostUS += ClassCBackoffByUS
			return true
		}
		return false

	case job.Flags&xq.TXFlagClassB != 0:
		// Class B ping-slot jobs fire on a fixed beacon-relative grid;
		// there is no alternate slot to retarget to.
		return false

	default: // Class A
		if job.RX2Freq != 0 && !job.SwitchedRX2 {
			job.Freq = job.RX2Freq
			job.DR = job.RX2DR
			job.HostUS += 1000000
			job.SwitchedRX2 = true
			s.recomputeAirtimeAndPow(job)
			return true
		}
		return false
	}
}

// altAntenna consumes one bit of job's remaining alternate-antenna mask,
// moving it to a different radio front-end (spec.md §4.5 "alt-antenna
// policy"). Once the mask is exhausted it falls back to alt_tx_time and,
// if that succeeds, refills the mask from the unit's full set so a
// retimed job can still try every antenna again.
func (s *Scheduler) altAntenna(unit *Unit, job *xq.TXJob) bool {
	if job.AltAnts != 0 {
		bit := job.AltAnts & (-job.AltAnts)
		job.AltAnts &^= bit
		job.RCtx = int64(bitIndex(bit))
		return true
	}
	if !s.altTxTime(job) {
		return false
	}
	job.AltAnts = unit.AltAntMask
	return true
}

func bitIndex(bit uint16) int {
	for i := 0; i < 16; i++ {
		if bit&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}
