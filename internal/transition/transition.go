// Package transition implements the replay server's transaction
// protocol: every change to a session's visible chart window (a
// timeframe switch, a jump to an arbitrary date, a skip edit, an
// autoplay tick) runs through the same five phases — PRE, DESTRUCT,
// LOAD, COMMIT, BROADCAST — serialized by a single mutex per session so
// two transitions can never interleave and leave the series in a state
// no single transaction ever actually produced.
package transition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"github.com/thrasher-corp/candlereplay/internal/broadcaster"
	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/cursor"
	"github.com/thrasher-corp/candlereplay/internal/lifecycle"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
	"github.com/thrasher-corp/candlereplay/internal/skipstore"
	"github.com/thrasher-corp/candlereplay/internal/store"
)

// Kind identifies which client operation a transaction is carrying out.
type Kind string

// The fixed set of operations that run through the transition protocol.
const (
	KindGoToDate     Kind = "go_to_date"
	KindSwitchTF     Kind = "switch_timeframe"
	KindSkip         Kind = "skip"
	KindAutoplayTick Kind = "autoplay_tick"
)

// Phase is a step of the five-phase transaction protocol.
type Phase int

// The five phases, in the order every transaction runs them.
const (
	PhasePre Phase = iota
	PhaseDestruct
	PhaseLoad
	PhaseCommit
	PhaseBroadcast
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhaseDestruct:
		return "destruct"
	case PhaseLoad:
		return "load"
	case PhaseCommit:
		return "commit"
	case PhaseBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

const (
	normalDeadline    = 8 * time.Second
	afterGoToDeadline = 15 * time.Second

	// defaultRecreationAckTimeout bounds how long DESTRUCT waits for the
	// client to acknowledge a chart_series_recreation command before
	// giving up on it and continuing optimistically.
	defaultRecreationAckTimeout = 2 * time.Second
)

// Result is what a transaction hands back after committing: the fresh
// visible window for the session's current timeframe.
type Result struct {
	TransactionID  string
	Timeframe      candle.Timeframe
	Candles        []candle.Candle
	CursorTime     int64
	Recreated      bool
	Contamination  skipstore.Level
	AutoplayPaused bool
	AtEnd          bool
	// ClearCache and LoadAnchor are the client cache-coherence hint: set
	// on a Go-To-Date transaction so the client drops cached timeframe
	// entries that don't start at the new anchor; left zero-valued for
	// every other transaction kind.
	ClearCache bool
	LoadAnchor int64
}

// PauseAutoplayFunc is invoked at the start of the PRE phase of every
// externally-initiated transaction (everything but an autoplay tick
// itself). It must stop autoplay if it is running and report whether it
// did, so the transaction can tell the client playback was paused out
// from under it.
type PauseAutoplayFunc func() bool

// Coordinator serializes every transition for one session.
type Coordinator struct {
	mu sync.Mutex

	store     *store.Store
	skips     *skipstore.Store
	cursor    *cursor.Cursor
	lifecycle *lifecycle.Manager
	conn      *broadcaster.Conn

	windowSize int

	transitioning atomic.Bool
	onPrePhase    PauseAutoplayFunc

	recreationAckTimeout time.Duration
	ackMu                sync.Mutex
	acks                 map[string]chan struct{}
}

// New builds a coordinator for one session's components. conn may be nil
// (e.g. in tests) in which case broadcasts are silently skipped.
func New(st *store.Store, skips *skipstore.Store, cur *cursor.Cursor, lc *lifecycle.Manager, conn *broadcaster.Conn, windowSize int) *Coordinator {
	return &Coordinator{
		store:                st,
		skips:                skips,
		cursor:               cur,
		lifecycle:            lc,
		conn:                 conn,
		windowSize:           windowSize,
		recreationAckTimeout: defaultRecreationAckTimeout,
		acks:                 make(map[string]chan struct{}),
	}
}

// SetRecreationAckTimeout overrides how long DESTRUCT waits for a
// chart_series_recreation ack. Intended for tests; must be called before
// any transaction runs.
func (c *Coordinator) SetRecreationAckTimeout(d time.Duration) {
	c.recreationAckTimeout = d
}

// AckRecreation is called when the client acknowledges a
// chart_series_recreation command for txID, unblocking the DESTRUCT
// phase that is waiting on it. Acks for unknown or already-resolved
// transaction ids are ignored.
func (c *Coordinator) AckRecreation(txID string) {
	c.ackMu.Lock()
	ch, ok := c.acks[txID]
	c.ackMu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// IsTransitioning reports whether a transaction currently owns the
// session. Autoplay ticks poll this before firing so they back off
// instead of queueing up behind a slow transition.
func (c *Coordinator) IsTransitioning() bool {
	return c.transitioning.Load()
}

// SetConn swaps the broadcaster connection a coordinator sends
// completion messages to, used when a client reconnects mid-session.
func (c *Coordinator) SetConn(conn *broadcaster.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// SetOnPrePhase registers fn to run at the start of the PRE phase of
// every externally-initiated transaction. Autoplay ticks do not trigger
// it — pausing autoplay because autoplay itself is ticking would just
// stop it immediately.
func (c *Coordinator) SetOnPrePhase(fn PauseAutoplayFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPrePhase = fn
}

// GoToDate jumps the cursor to date and reloads tf's visible window
// ending there. The broadcast carries clear_cache=true and load_anchor=
// date so the client drops any cached timeframe entries that predate the
// jump.
func (c *Coordinator) GoToDate(ctx context.Context, date int64, tf candle.Timeframe) (*Result, error) {
	return c.run(ctx, KindGoToDate, tf, afterGoToDeadline, true, date, func() bool {
		c.cursor.GoToDate(date)
		return false
	})
}

// SwitchTimeframe moves the session to tf, reloading its window ending
// at the cursor's current load anchor.
func (c *Coordinator) SwitchTimeframe(ctx context.Context, tf candle.Timeframe) (*Result, error) {
	return c.run(ctx, KindSwitchTF, tf, normalDeadline, false, 0, func() bool { return false })
}

// Skip records a debug skip event at originTF and reloads tf's window so
// the edit becomes visible.
func (c *Coordinator) Skip(ctx context.Context, originTF, tf candle.Timeframe, edited candle.Candle) (*Result, error) {
	return c.run(ctx, KindSkip, tf, normalDeadline, false, 0, func() bool {
		c.skips.Append(originTF, edited)
		c.lifecycle.TrackSkip()
		return false
	})
}

// AutoplayTick advances the cursor by one tf-width bar and reloads the
// window. Callers are expected to check IsTransitioning before invoking
// this on a timer so a busy coordinator simply skips a tick rather than
// piling up blocked goroutines. If the cursor is already sitting on the
// last available candle, the tick does not advance further and reports
// AtEnd so the caller can stop autoplay instead of ticking forever.
func (c *Coordinator) AutoplayTick(ctx context.Context, tf candle.Timeframe) (*Result, error) {
	return c.run(ctx, KindAutoplayTick, tf, normalDeadline, false, 0, func() bool {
		last, err := c.store.Last(tf)
		if err != nil {
			return false
		}
		if c.cursor.Current() >= last.Time {
			c.cursor.Clamp(last.Time)
			return true
		}
		c.cursor.Skip(tf.Seconds())
		c.cursor.Clamp(last.Time)
		return c.cursor.Current() >= last.Time
	})
}

func (c *Coordinator) run(ctx context.Context, kind Kind, tf candle.Timeframe, deadline time.Duration, clearCache bool, loadAnchor int64, mutate func() bool) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	txIDVal, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("transition: generating transaction id: %w", err)
	}
	txID := txIDVal.String()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	replaylog.Debugln(replaylog.TransitionMgr, "transaction", txID, kind, "phase", PhasePre)

	var autoplayPaused bool
	if kind != KindAutoplayTick && c.onPrePhase != nil {
		autoplayPaused = c.onPrePhase()
	}

	// PRE: snapshot lifecycle state and decide whether this transaction
	// needs a full series recreation before the series is no longer
	// trustworthy for reads (below, once BeginTransition moves it into
	// Transitioning).
	prevState := c.lifecycle.BeginTransition()
	c.transitioning.Store(true)
	defer c.transitioning.Store(false)
	recreate := c.lifecycle.NeedsRecreation(prevState) || c.skips.ContaminationLevel(tf) == skipstore.Heavy

	replaylog.Debugln(replaylog.TransitionMgr, "transaction", txID, kind, "phase", PhaseDestruct, "needs_recreation", recreate)
	if recreate {
		c.destructRecreate(ctx, txID)
	}

	result, err := c.loadAndCommit(ctx, txID, kind, tf, recreate, mutate)
	if err != nil {
		c.lifecycle.CompleteTransition(false, false)
		if recreate {
			c.broadcast(broadcaster.Message{
				Kind: broadcaster.KindEmergencyRecoveryRequired,
				Payload: map[string]interface{}{
					"transaction_id": txID,
					"reason":         err.Error(),
				},
			})
		}
		replaylog.Errorf(replaylog.TransitionMgr, "transaction %s failed: %v (was %s)", txID, err, prevState)
		return nil, err
	}

	result.AutoplayPaused = autoplayPaused
	result.ClearCache = clearCache
	result.LoadAnchor = loadAnchor
	c.broadcast(resultMessage(kind, result))
	return result, nil
}

// destructRecreate sends the chart_series_recreation command and blocks
// until the client acks it, the coordinator's ack timeout elapses, or the
// transaction's own deadline/context is cancelled (e.g. client
// disconnect) — in either of the latter two cases it logs and continues
// optimistically, scheduling an emergency recovery rather than failing
// the transaction outright.
func (c *Coordinator) destructRecreate(ctx context.Context, txID string) {
	ackCh := make(chan struct{})
	c.ackMu.Lock()
	c.acks[txID] = ackCh
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.acks, txID)
		c.ackMu.Unlock()
	}()

	c.broadcast(broadcaster.Message{
		Kind: broadcaster.KindChartSeriesRecreation,
		Payload: map[string]interface{}{
			"transaction_id": txID,
		},
	})

	timer := time.NewTimer(c.recreationAckTimeout)
	defer timer.Stop()

	select {
	case <-ackCh:
		replaylog.Debugln(replaylog.TransitionMgr, "transaction", txID, "recreation acked")
	case <-timer.C:
		replaylog.Warnf(replaylog.TransitionMgr, "transaction %s: recreation ack timed out, continuing optimistically", txID)
		c.broadcast(broadcaster.Message{
			Kind: broadcaster.KindEmergencyRecoveryRequired,
			Payload: map[string]interface{}{
				"transaction_id": txID,
				"reason":         "chart series recreation ack timed out",
			},
		})
	case <-ctx.Done():
		replaylog.Warnf(replaylog.TransitionMgr, "transaction %s: client disconnected during recreation ack wait, continuing optimistically", txID)
		c.broadcast(broadcaster.Message{
			Kind: broadcaster.KindEmergencyRecoveryRequired,
			Payload: map[string]interface{}{
				"transaction_id": txID,
				"reason":         "client disconnected during recreation ack wait",
			},
		})
	}
}

func (c *Coordinator) loadAndCommit(ctx context.Context, txID string, kind Kind, tf candle.Timeframe, recreate bool, mutate func() bool) (*Result, error) {
	type loadOutcome struct {
		res *Result
		err error
	}
	ch := make(chan loadOutcome, 1)

	go func() {
		savedCursor := *c.cursor
		atEnd := mutate()

		base, err := c.store.Slice(tf, c.cursor.LoadAnchor(), c.windowSize)
		if err != nil {
			*c.cursor = savedCursor
			ch <- loadOutcome{err: fmt.Errorf("transition: loading %s window: %w", tf, err)}
			return
		}

		merged := mergeSkips(base, c.skips.Project(tf))

		var fallback float64
		if len(merged) > 0 {
			fallback = merged[0].Open
		}
		clean := candle.Sanitize(merged, candle.Bounds{}, fallback)

		c.lifecycle.CompleteTransition(true, recreate)

		ch <- loadOutcome{res: &Result{
			TransactionID: txID,
			Timeframe:     tf,
			Candles:       clean,
			CursorTime:    c.cursor.Current(),
			Recreated:     recreate,
			Contamination: c.skips.ContaminationLevel(tf),
			AtEnd:         atEnd,
		}}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("transition: %s deadline exceeded: %w", kind, ctx.Err())
	}
}

// mergeSkips overlays a timeframe's skip projection onto its loaded base
// window: any base candle sharing a skip candle's aligned timestamp is
// replaced by the skip version, and skip candles outside the base window
// are inserted. It relies on candle.DedupeByTime's last-write-wins rule,
// with skip candles appended after the base so they always win a
// collision.
func mergeSkips(base, skips []candle.Candle) []candle.Candle {
	if len(skips) == 0 {
		return base
	}
	combined := make([]candle.Candle, 0, len(base)+len(skips))
	combined = append(combined, base...)
	combined = append(combined, skips...)
	merged := candle.DedupeByTime(combined)
	candle.SortByTime(merged)
	return merged
}

func (c *Coordinator) broadcast(msg broadcaster.Message) {
	if c.conn == nil {
		return
	}
	if err := c.conn.Send(msg); err != nil {
		replaylog.Warnf(replaylog.TransitionMgr, "broadcast %s dropped: %v", msg.Kind, err)
	}
}

// resultMessage builds the single state-update message BROADCAST sends
// once a transaction commits. When recreate was needed, the
// chart_series_recreation command has already gone out ahead of this
// (DESTRUCT) — this is always the data message, never the recreation
// command itself.
func resultMessage(kind Kind, res *Result) broadcaster.Message {
	payload := map[string]interface{}{
		"transaction_id":  res.TransactionID,
		"timeframe":       res.Timeframe.String(),
		"candles":         res.Candles,
		"cursor_time":     res.CursorTime,
		"recreated":       res.Recreated,
		"autoplay_paused": res.AutoplayPaused,
		"at_end":          res.AtEnd,
		"clear_cache":     res.ClearCache,
		"load_anchor":     res.LoadAnchor,
	}
	switch kind {
	case KindGoToDate:
		return broadcaster.Message{Kind: broadcaster.KindGoToDateComplete, Payload: payload}
	case KindSkip:
		return broadcaster.Message{Kind: broadcaster.KindSkipComplete, Payload: payload}
	default:
		return broadcaster.Message{Kind: broadcaster.KindTimeframeChanged, Payload: payload}
	}
}
