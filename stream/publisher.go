// Package stream pushes live charger updates to one browser connection. Each connection
// polls the upstream on a ticker and emits typed events until the client goes away.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/charger-dashboard/apierror"
	"github.com/jrsteele09/charger-dashboard/history"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Event names sent to the client.
const (
	EventPing    = "ping"
	EventState   = "state"
	EventSession = "session"
	EventHistory = "history"
	EventError   = "error"
)

const (
	DefaultInterval   = 7 * time.Second
	DefaultHistoryTTL = 60 * time.Second
)

type State int32

const (
	Connecting State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Streaming:
		return "STREAMING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Sink delivers one event to the client.
type Sink interface {
	Send(ctx context.Context, event string, data any) error
}

// Source reads charger data from the upstream. OngoingSession returns null when there is
// no session and Sessions returns an empty list when there is no history.
type Source interface {
	State(ctx context.Context, chargerID string) (json.RawMessage, error)
	OngoingSession(ctx context.Context, chargerID string) (json.RawMessage, error)
	Sessions(ctx context.Context, chargerID, from, to string) ([]any, error)
}

type Recorder interface {
	StreamOpened()
	StreamClosed()
	StreamPass(ok bool)
}

type Options struct {
	Interval   time.Duration
	HistoryTTL time.Duration
	Recorder   Recorder
	NowFunc    func() time.Time
}

type ErrorEvent struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

type PingEvent struct {
	T int64 `json:"t"`
}

type Publisher struct {
	source    Source
	chargerID string
	interval  time.Duration
	ttl       time.Duration
	recorder  Recorder
	nowFunc   func() time.Time
	state     atomic.Int32

	mu            sync.Mutex
	lastHistory   *history.Window
	lastHistoryAt time.Time
}

func NewPublisher(source Source, chargerID string, opts Options) *Publisher {
	p := &Publisher{
		source:    source,
		chargerID: chargerID,
		interval:  opts.Interval,
		ttl:       opts.HistoryTTL,
		recorder:  opts.Recorder,
		nowFunc:   opts.NowFunc,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.ttl <= 0 {
		p.ttl = DefaultHistoryTTL
	}
	if p.nowFunc == nil {
		p.nowFunc = time.Now
	}
	p.state.Store(int32(Connecting))
	return p
}

func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Run streams to sink until ctx is cancelled. It returns nil when the client went away
// and the sink's error when an event could not be delivered.
func (p *Publisher) Run(ctx context.Context, sink Sink) error {
	p.state.Store(int32(Streaming))
	defer p.state.Store(int32(Closed))

	if p.recorder != nil {
		p.recorder.StreamOpened()
		defer p.recorder.StreamClosed()
	}

	if err := sink.Send(ctx, EventPing, PingEvent{T: p.nowFunc().UnixMilli()}); err != nil {
		return err
	}
	if err := p.pass(ctx, sink); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.pass(ctx, sink); err != nil {
				return err
			}
		}
	}
}

// pass fetches and emits one round of updates. Upstream failures become an error event;
// only a failed delivery is returned.
func (p *Publisher) pass(ctx context.Context, sink Sink) error {
	state, session, window, err := p.load(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if p.recorder != nil {
		p.recorder.StreamPass(err == nil)
	}
	if err != nil {
		mapped := apierror.Map(err)
		log.Debug().Err(err).Str("charger", p.chargerID).Int("status", mapped.Status).Msg("[stream] pass failed")
		return sink.Send(ctx, EventError, ErrorEvent{Error: mapped.Message, Status: mapped.Status})
	}

	if err := sink.Send(ctx, EventState, state); err != nil {
		return err
	}
	if err := sink.Send(ctx, EventSession, session); err != nil {
		return err
	}
	return sink.Send(ctx, EventHistory, window)
}

func (p *Publisher) load(ctx context.Context) (json.RawMessage, json.RawMessage, history.Window, error) {
	var state, session json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		state, err = p.source.State(gctx, p.chargerID)
		return err
	})
	g.Go(func() error {
		var err error
		session, err = p.source.OngoingSession(gctx, p.chargerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, history.Window{}, err
	}

	window, err := p.history(ctx)
	if err != nil {
		return nil, nil, history.Window{}, err
	}
	return state, session, window, nil
}

// history recomputes the 24 hour window once the last one is older than the history TTL,
// otherwise it relabels the last one with its current age.
func (p *Publisher) history(ctx context.Context) (history.Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	if p.lastHistory != nil && now.Sub(p.lastHistoryAt) <= p.ttl {
		return p.lastHistory.Relabel(p.lastHistoryAt, now), nil
	}

	from, to := history.LastDay(now)
	records, err := p.source.Sessions(ctx, p.chargerID, from, to)
	if err != nil {
		return history.Window{}, err
	}
	window := history.Aggregate(from, to, records)
	p.lastHistory = &window
	p.lastHistoryAt = now
	return window.Relabel(now, now), nil
}
