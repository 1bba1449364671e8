package scheduler

import (
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/xq"
)

// NextTxAction drives one TX unit's queue head through the radio
// arm/emit/check state machine (spec.md §4.5 next_tx_action), to be called
// by the engine whenever txunit's timer fires. It returns the host-µs
// deadline at which it should be called again and whether one exists (an
// empty queue has none).
func (s *Scheduler) NextTxAction(txunit int) (nextUS int64, hasNext bool) {
	unit, ok := s.Units[txunit]
	if !ok {
		return 0, false
	}
	for {
		if unit.Head == xq.NilIndex {
			return 0, false
		}
		head := unit.Head
		job := s.Pool.Job(head)
		now := s.Now()

		switch {
		case job.IsTXing() && job.IsChecked() && now >= job.HostUS+int64(job.AirtimeUS):
			// Fully confirmed and finished: retire and look at the next job.
			xq.UnqueueJob(&unit.Head, s.Pool)
			s.Pool.FreeJob(head)
			continue

		case job.IsTXing() && job.IsChecked():
			return job.HostUS + int64(job.AirtimeUS), true

		case job.IsTXing() && !job.IsChecked() && now < job.HostUS+int64(job.AirtimeUS)+TXCheckFudgeUS:
			return job.HostUS + int64(job.AirtimeUS) + TXCheckFudgeUS, true

		case job.IsTXing() && !job.IsChecked():
			status, err := s.Radio.TxStatus(txunit)
			if err == nil && (status == ral.StatusEmitting || status == ral.StatusDone) {
				unit.Governance.RecordEmission(job.Freq, job.RXChIdx[0], job.HostUS, job.AirtimeUS)
				job.Flags |= xq.TXFlagTXChecked
				s.emitDntxed(job)
				continue
			}
			// The radio never reported emitting: the submission silently
			// failed. Abort, clear TXing, and retry like any other
			// conflict loss.
			s.Radio.TxAbort(txunit)
			job.Flags &^= xq.TXFlagTXing
			xq.UnqueueJob(&unit.Head, s.Pool)
			if s.altTxTime(job) || s.altAntenna(unit, job) {
				xq.InsertSorted(&unit.Head, s.Pool, head)
			} else {
				s.dropJob(head, job, "transient_radio_error")
			}
			continue

		default: // not yet submitted
			txdelta := job.HostUS - now
			switch {
			case txdelta < -TXMinGapUS:
				// The window has already passed.
				xq.UnqueueJob(&unit.Head, s.Pool)
				if s.altTxTime(job) || s.altAntenna(unit, job) {
					xq.InsertSorted(&unit.Head, s.Pool, head)
				} else {
					s.dropJob(head, job, "missed_window")
				}
				continue

			case txdelta > TXAimGapUS:
				return job.HostUS - TXAimGapUS, true

			default:
				return s.submit(txunit, unit, head, job, now)
			}
		}
	}
}

// submit resolves xtime, checks duty-cycle/CCA, resolves conflicts against
// later-queued jobs that would overlap this emission, and hands the job to
// the radio.
func (s *Scheduler) submit(txunit int, unit *Unit, idx xq.JobIndex, job *xq.TXJob, now int64) (int64, bool) {
	if job.XTime == 0 && s.XTime != nil {
		xtime, ok := s.XTime(txunit, job.HostUS)
		if !ok {
			s.retryOrDrop(unit, idx, job, "xtime_unresolved")
			return now, true
		}
		job.XTime = xtime
	}
	if job.XTime == 0 {
		s.retryOrDrop(unit, idx, job, "xtime_unresolved")
		return now, true
	}

	allowed, ccaDisabled := unit.Governance.CanTx(job.Freq, job.RXChIdx[0], job.HostUS)
	if !allowed {
		s.retryOrDrop(unit, idx, job, "duty_cycle_blocked")
		return now, true
	}

	end := job.HostUS + int64(job.AirtimeUS)
	var displaced []xq.JobIndex
	for nxt := job.Next; nxt != xq.NilIndex; {
		succ := s.Pool.Job(nxt)
		if succ.HostUS >= end+TXMinGapUS {
			break
		}
		if effectivePriority(succ) > effectivePriority(job) {
			// This job loses to a higher-effective-priority successor:
			// it must yield its slot.
			s.retryOrDrop(unit, idx, job, "displaced")
			return now, true
		}
		displaced = append(displaced, nxt)
		nxt = succ.Next
	}

	result, err := s.Radio.Tx(ral.TxRequest{
		TxUnit:    txunit,
		XTime:     job.XTime,
		Freq:      job.Freq,
		TXPowDeci: job.TXPowDeci,
		Payload:   s.Pool.DataSlice(job.Off, job.Len),
		RCtx:      job.RCtx,
	}, ccaDisabled)
	if err != nil || result != ral.TxOK {
		s.retryOrDrop(unit, idx, job, "radio_rejected")
		return now, true
	}

	job.Flags |= xq.TXFlagTXing
	for _, d := range displaced {
		xq.RemoveJob(&unit.Head, s.Pool, d)
		djob := s.Pool.Job(d)
		if s.altTxTime(djob) || s.altAntenna(unit, djob) {
			xq.InsertSorted(&unit.Head, s.Pool, d)
		} else {
			s.dropJob(d, djob, "displaced_no_alternative")
		}
	}
	return job.HostUS + int64(job.AirtimeUS) + TXCheckFudgeUS, true
}

func (s *Scheduler) retryOrDrop(unit *Unit, idx xq.JobIndex, job *xq.TXJob, reason string) {
	xq.UnqueueJob(&unit.Head, s.Pool)
	if s.altTxTime(job) || s.altAntenna(unit, job) {
		xq.InsertSorted(&unit.Head, s.Pool, idx)
		return
	}
	s.dropJob(idx, job, reason)
}
