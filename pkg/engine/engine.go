// Package engine is the single-threaded core event loop (spec.md §5): it
// owns every mutable piece of station state (the TX/RX pools, the
// scheduler's per-unit queues, the time-sync and duty-cycle state, the
// beacon), and is the only goroutine that touches any of it. The
// WebSocket transport's read/write goroutines and the RAL's own internal
// goroutines (if any) only ever hand the loop a message or a fetched
// packet; they never mutate core state directly.
package engine

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"go.station.network/s2e/pkg/beacon"
	"go.station.network/s2e/pkg/config"
	"go.station.network/s2e/pkg/dutycycle"
	"go.station.network/s2e/pkg/lns"
	"go.station.network/s2e/pkg/lns/transport"
	"go.station.network/s2e/pkg/log"
	"go.station.network/s2e/pkg/ral"
	"go.station.network/s2e/pkg/rxforward"
	"go.station.network/s2e/pkg/scheduler"
	"go.station.network/s2e/pkg/timesync"
	"go.station.network/s2e/pkg/xq"
)

// RXPollInterval is the RAL fetch cadence (spec.md §6.2 RX_POLL_INTV).
const RXPollInterval = 20 * time.Millisecond

// sender is the minimal upstream send surface the engine needs (shared by
// lns.Transport and rxforward.Sender); tests substitute a fake for
// transport.Client to avoid a real WebSocket dial.
type sender interface {
	SendJSON(v interface{}) (blocked bool, err error)
}

// downstreamQueueLen bounds how many undelivered downstream messages the
// read-loop goroutine may hand to the core loop before it starts
// dropping newly arriving messages (spec.md §5 core loop must never block on a
// producer; a message queue overrun is treated like a dropped frame, not
// a fatal condition).
const downstreamQueueLen = 256

// Options configures a new Engine.
type Options struct {
	Radio         ral.Radio
	TransportURL  string
	NumTxUnits    int
	Station       string
	Firmware      string
	Package       string
	Model         string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Config        *config.Config
	Log           log.Interface
}

// Engine ties together every component package into one running station
// core (spec.md §2 system overview).
type Engine struct {
	opts Options

	Pool  *xq.TXPool
	RX    *xq.RXFifo
	TS    *timesync.Engine
	Sched *scheduler.Scheduler
	FWD   *rxforward.Forwarder
	Beac  *beacon.Beacon
	Cfg   *config.Config
	Log   log.Interface
	Radio ral.Radio

	router    *lns.Router
	transport *transport.Client
	out       sender // upstream sink; e.transport in production, a fake in tests
	drTable   *drTable

	downstream chan []byte
	terminate  atomic.Bool // set by Shutdown, checked at the top of every loop iteration

	// reconnectGen counts WebSocket reconnects; it is only ever written on
	// the loop goroutine today, but lives as an atomic.Uint32 (spec.md §9,
	// teacher idiom) so a future transport-side reader (e.g. a metrics
	// gauge) never introduces a race.
	reconnectGen atomic.Uint32
}

// New wires every component package together per opts, registering the
// LNS router's callbacks against this Engine's own handlers.
func New(opts Options) *Engine {
	logger := opts.Log
	if logger == nil {
		logger = log.Noop()
	}
	if opts.NumTxUnits <= 0 {
		opts.NumTxUnits = 1
	}

	pool := xq.NewTXPool()
	rx := xq.NewRXFifo()
	ts := timesync.NewEngine()

	e := &Engine{
		opts:       opts,
		Pool:       pool,
		RX:         rx,
		TS:         ts,
		Cfg:        opts.Config,
		Log:        logger,
		Radio:      opts.Radio,
		downstream: make(chan []byte, downstreamQueueLen),
		drTable:    newDRTable(),
	}

	e.FWD = rxforward.New(rx, logger)
	e.FWD.RPSToDR = e.drTable.RPSToDR

	e.Sched = scheduler.New(pool, opts.Radio, timesync.RealNow, e.drTable.DRToRPS, e.xtimeFor, logger)
	e.Sched.OnDntxed = e.onDntxed
	for u := 0; u < opts.NumTxUnits; u++ {
		e.Sched.AttachUnit(u, dutycycle.NewGovernance(dutycycle.RegionUnknown, 8))
	}

	e.Beac = beacon.New(nil, timesync.PPSValidInterval)

	e.router = lns.NewRouter()
	e.router.OnRouterConfig = e.onRouterConfig
	e.router.OnDownlink = e.onDownlink
	e.router.OnRunCmd = e.onRunCmd
	e.router.OnTimesyncDown = e.onTimesyncDown
	e.router.OnGetXTime = e.onGetXTime
	e.router.TxUnitForRCtx = e.txUnitForRCtx
	e.router.ResolveDnSched = e.resolveDnSched

	e.FWD.XtimeToUstime = e.TS.XtimeToUstime
	e.FWD.MuxTime = e.router.Mux.Now

	e.transport = transport.New(opts.TransportURL, logger)
	e.transport.OnMessage = e.enqueueDownstream
	e.transport.OnConnect = e.onConnect
	e.out = e.transport

	return e
}

// enqueueDownstream is called from the transport's read-loop goroutine; it
// only ever writes to a channel, never core state, honouring the §5
// single-mutator invariant.
func (e *Engine) enqueueDownstream(raw []byte) {
	select {
	case e.downstream <- raw:
	default:
		e.Log.Warn("downstream queue full, dropping message")
	}
}

// onConnect runs on the transport's goroutine right after a fresh dial
// succeeds; it only enqueues a sentinel the loop reacts to, since tearing
// down TX jobs is core-state mutation and must happen on the loop
// goroutine (spec.md §5 "a WebSocket reconnect tears down all in-flight
// TX jobs via s2e.free").
func (e *Engine) onConnect() {
	e.enqueueDownstream(reconnectSentinel)
}

// reconnectSentinel is a msgtype no real LNS message can carry (msgtype
// must be a JSON string per spec.md §6.1, this is empty JSON), used to
// signal "a fresh connection was just established" through the same
// channel ordinary downstream messages travel, so the free+resync always
// happens strictly before any message the new connection delivers.
var reconnectSentinel = []byte(`{}`)

// Shutdown requests the loop to stop at its next iteration (spec.md §5
// "SIGINT/SIGTERM set a termination flag handled at the next loop
// iteration").
func (e *Engine) Shutdown() { e.terminate.Store(true) }

func (e *Engine) terminating() bool { return e.terminate.Load() }

// Run starts the transport's reconnect-supervised dial loop and the core
// event loop, returning when either stops or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.transport.RunWithReconnect(gctx, e.opts.ReconnectBase, e.opts.ReconnectMax)
	})
	g.Go(func() error {
		return e.loop(gctx)
	})
	return g.Wait()
}
