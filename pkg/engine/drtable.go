package engine

import "go.station.network/s2e/pkg/airtime"

// drTable maps the LoRaWAN data-rate indices the LNS's router_config
// message enumerates (spec.md §4.8 "DRs": [SF, BW, dnonly] triples in
// index order) to the airtime.RPS values the scheduler and DC governance
// operate on.
type drTable struct {
	byDR []airtime.RPS
}

func newDRTable() *drTable { return &drTable{} }

// Load rebuilds the table from a router_config DRs list.
func (t *drTable) Load(drs [][3]int) {
	t.byDR = t.byDR[:0]
	for _, dr := range drs {
		sf, bwHz, dnOnly := dr[0], dr[1], dr[2] != 0
		t.byDR = append(t.byDR, airtime.MakeRPS(sfIndexOf(sf), bwIndexOf(bwHz), dnOnly))
	}
}

func sfIndexOf(sf int) airtime.RPS {
	if sf == 0 {
		return airtime.SFFSK
	}
	if sf < 7 || sf > 12 {
		return airtime.SF7
	}
	return airtime.SF7 + airtime.RPS(sf-7)
}

func bwIndexOf(bwHz int) airtime.RPS {
	switch bwHz {
	case 250000:
		return airtime.BW250
	case 500000:
		return airtime.BW500
	default:
		return airtime.BW125
	}
}

// DRToRPS implements scheduler.DRResolver.
func (t *drTable) DRToRPS(dr int) airtime.RPS {
	if dr < 0 || dr >= len(t.byDR) {
		return airtime.MakeRPS(airtime.SF7, airtime.BW125, false)
	}
	return t.byDR[dr]
}

// RPSToDR implements rxforward.Forwarder.RPSToDR, reversing DRToRPS by
// linear scan (the reference's own rps2dr does not special-case DnOnly
// entries either; see airtime.RPS.DnOnly's doc comment).
func (t *drTable) RPSToDR(rps uint8) int {
	for i, r := range t.byDR {
		if uint8(r) == rps {
			return i
		}
	}
	return 0
}
