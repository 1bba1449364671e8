package lns

import "go.station.network/s2e/pkg/timesync"

// Transport is the minimal send surface lns needs from the WebSocket
// client (pkg/lns/transport); kept separate from rxforward.Sender so the
// two upstream producers (RX flush and everything else) can share one
// connection without importing each other's packages.
type Transport interface {
	SendJSON(v interface{}) (blocked bool, err error)
}

// SendVersion sends the upstream handshake (spec.md §4.8), first message
// after the WebSocket dial completes.
func SendVersion(t Transport, station, firmware, pkg, model string) (bool, error) {
	return t.SendJSON(Version{
		MsgType: "version", Station: station, Firmware: firmware, Package: pkg, Model: model, Protocol: 2,
	})
}

// SendDnTxed sends the upstream confirmation a TX job was actually
// emitted (spec.md §4.5 emitDntxed).
func SendDnTxed(t Transport, diid uint64, txtimeUS, gpstimeUS int64) (bool, error) {
	return t.SendJSON(DnTxed{MsgType: "dntxed", Diid: diid, TxTime: txtimeUS, GPSTime: gpstimeUS})
}

// SendGetXTimeReply answers a GetXTime request with the current xtime of
// every TX unit 0..n-1 (0 if that unit is not synced), echoing back the
// requester's MuxTime token (spec.md §9 "MuxTime semantics").
func SendGetXTimeReply(t Transport, ts *timesync.Engine, numUnits int, mux *MuxTimeState) (bool, error) {
	out := make([]int64, numUnits)
	for i := 0; i < numUnits; i++ {
		out[i] = ts.LastXTime(i)
	}
	return t.SendJSON(GetXTimeReply{MsgType: "getxtime", MuxTime: mux.Now(timesync.RealNow()), XTime: out})
}

// SendTimesyncRequest sends the upstream half of a timesync exchange
// (spec.md §4.2): the host-µs time the radio tick bracket was taken at,
// with an optional GPS-time echo once the station has one, and the
// current MuxTime estimate.
func SendTimesyncRequest(t Transport, txtimeUS, gpstimeUS int64, mux *MuxTimeState) (bool, error) {
	return t.SendJSON(TimesyncUp{MsgType: "timesync", MuxTime: mux.Now(timesync.RealNow()), TxTime: txtimeUS, GPSTime: gpstimeUS})
}
