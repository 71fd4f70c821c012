// Package poller keeps the registries in step with the backend. Each tick
// fetches patients, stats, alerts and sessions concurrently and commits
// every successful result to its registry, provided the tick is still the
// latest one issued and the login that issued it is still current.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalwatch/monitor/internal/auth"
	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
	"github.com/vitalwatch/monitor/internal/registry"
)

// Fetcher is the read side of the REST client.
type Fetcher interface {
	Patients(ctx context.Context) ([]client.Patient, error)
	Dashboard(ctx context.Context) (*client.DashboardStats, error)
	Alerts(ctx context.Context) ([]client.Alert, error)
	Sessions(ctx context.Context) ([]client.MonitoringSession, error)
}

// Feeds lists the per-tick fetches in report order.
var Feeds = []client.Feed{client.FeedPatients, client.FeedStats, client.FeedAlerts, client.FeedSessions}

// Outcome is what happened to one feed within a tick.
type Outcome int

const (
	Committed Outcome = iota
	Failed            // fetch failed, registry keeps its prior snapshot
	Discarded         // fetch succeeded but a newer tick or login superseded it
	AuthFailed        // fetch returned 401
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	case Discarded:
		return "discarded"
	case AuthFailed:
		return "auth-failed"
	default:
		return "unknown"
	}
}

// FeedResult is one feed's result within a tick.
type FeedResult struct {
	Feed     client.Feed
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report describes a finished tick.
type Report struct {
	Seq        uint64
	Generation uint64
	Started    time.Time
	Finished   time.Time
	Results    []FeedResult
	Skipped    bool // not issued: the guard was false
	AuthLost   bool
}

// Err combines the errors of every failed feed.
func (r Report) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", res.Feed, res.Err))
		}
	}
	return err
}

// Count returns how many feeds ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Result returns the result for feed.
func (r Report) Result(feed client.Feed) (FeedResult, bool) {
	for _, res := range r.Results {
		if res.Feed == feed {
			return res, true
		}
	}
	return FeedResult{}, false
}

// Poller issues sequenced poll ticks while the guard is authenticated.
type Poller struct {
	fetcher   Fetcher
	guard     *auth.Guard
	regs      *registry.Set
	interval  time.Duration
	timeout   time.Duration
	threshold int
	logger    *zap.Logger

	mu  sync.Mutex // serialises tick issue with commits
	seq uint64

	health map[client.Feed]*feedHealth
	nudge  chan struct{}

	listenersMu sync.RWMutex
	listeners   []func(Report)
}

// New creates a poller that writes fetched snapshots into regs.
func New(fetcher Fetcher, guard *auth.Guard, regs *registry.Set, cfg config.SyncConfig, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	health := make(map[client.Feed]*feedHealth, len(Feeds))
	for _, f := range Feeds {
		health[f] = newFeedHealth()
	}
	return &Poller{
		fetcher:   fetcher,
		guard:     guard,
		regs:      regs,
		interval:  cfg.PollInterval,
		timeout:   cfg.RequestTimeout,
		threshold: cfg.FailureThreshold,
		logger:    logger.Named("poller"),
		health:    health,
		nudge:     make(chan struct{}, 1),
	}
}

// OnTick registers fn to receive every issued tick's report. fn runs on
// the tick's goroutine and must not block.
func (p *Poller) OnTick(fn func(Report)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Interval returns the configured cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Seq returns the number of the latest issued tick.
func (p *Poller) Seq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Nudge asks the running loop for an immediate tick. Requests made while
// one is already pending collapse into it; requests made while
// unauthenticated are dropped when the tick finds the guard false.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Health returns a snapshot of every feed's failure tracking.
func (p *Poller) Health() []FeedHealth {
	out := make([]FeedHealth, 0, len(Feeds))
	for _, f := range Feeds {
		out = append(out, p.health[f].snapshot(f, p.threshold))
	}
	return out
}

// Run follows the guard until ctx is cancelled: whenever it turns true
// the poller ticks immediately and then on every interval; whenever it
// turns false the timer is cancelled and nothing is fetched until the
// next login.
func (p *Poller) Run(ctx context.Context) {
	states, stopWatch := p.guard.Watch()
	defer stopWatch()

	var (
		cancelLoop context.CancelFunc
		armedGen   uint64
	)
	halt := func() {
		if cancelLoop != nil {
			cancelLoop()
			cancelLoop = nil
			armedGen = 0
		}
	}
	defer halt()

	arm := func(st auth.State) {
		if st.Authenticated && cancelLoop != nil && armedGen == st.Generation {
			return
		}
		halt()
		if !st.Authenticated {
			p.logger.Info("polling halted", zap.String("reason", st.Reason))
			return
		}
		loopCtx, cancel := context.WithCancel(ctx)
		cancelLoop, armedGen = cancel, st.Generation
		go p.loop(loopCtx, st.Generation)
	}

	arm(p.guard.State())
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			arm(st)
		}
	}
}

func (p *Poller) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("polling started", zap.Duration("interval", p.interval), zap.Uint64("generation", gen))
	// the immediate tick covers any nudge queued before the loop started
	select {
	case <-p.nudge:
	default:
	}
	p.launch(ctx, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.launch(ctx, gen)
		case <-p.nudge:
			p.launch(ctx, gen)
		}
	}
}

// launch issues a tick without waiting for it, so a slow tick never
// delays the next one.
func (p *Poller) launch(ctx context.Context, gen uint64) {
	go p.tick(ctx, gen)
}

// Tick issues one tick for the current login and waits for all four
// fetches to finish. It returns a skipped report when unauthenticated.
func (p *Poller) Tick(ctx context.Context) Report {
	st := p.guard.State()
	if !st.Authenticated {
		return Report{Skipped: true, Generation: st.Generation}
	}
	return p.tick(ctx, st.Generation)
}

func (p *Poller) tick(ctx context.Context, gen uint64) Report {
	p.mu.Lock()
	if !p.guard.Current(gen) {
		p.mu.Unlock()
		return Report{Skipped: true, Generation: gen}
	}
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	report := Report{
		Seq:        seq,
		Generation: gen,
		Started:    time.Now(),
		Results:    make([]FeedResult, len(Feeds)),
	}

	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var g errgroup.Group
	for i, feed := range Feeds {
		g.Go(func() error {
			report.Results[i] = p.fetch(fetchCtx, seq, gen, feed)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	report.AuthLost = report.Count(AuthFailed) > 0

	p.logger.Debug("tick finished",
		zap.Uint64("seq", seq),
		zap.Int("committed", report.Count(Committed)),
		zap.Int("failed", report.Count(Failed)),
		zap.Int("discarded", report.Count(Discarded)),
		zap.Bool("auth_lost", report.AuthLost),
		zap.Duration("took", report.Finished.Sub(report.Started)),
	)

	p.listenersMu.RLock()
	listeners := p.listeners
	p.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(report)
	}
	return report
}

func (p *Poller) fetch(ctx context.Context, seq, gen uint64, feed client.Feed) FeedResult {
	start := time.Now()
	var (
		apply func()
		err   error
	)

	switch feed {
	case client.FeedPatients:
		var v []client.Patient
		if v, err = p.fetcher.Patients(ctx); err == nil {
			apply = func() { p.regs.Patients.Replace(v) }
		}
	case client.FeedStats:
		var v *client.DashboardStats
		if v, err = p.fetcher.Dashboard(ctx); err == nil {
			apply = func() { p.regs.Stats.Replace(v) }
		}
	case client.FeedAlerts:
		var v []client.Alert
		if v, err = p.fetcher.Alerts(ctx); err == nil {
			apply = func() { p.regs.Alerts.Replace(v) }
		}
	case client.FeedSessions:
		var v []client.MonitoringSession
		if v, err = p.fetcher.Sessions(ctx); err == nil {
			apply = func() { p.regs.Sessions.ReplaceAt(seq, v) }
		}
	default:
		err = fmt.Errorf("unknown feed %q", feed)
	}

	res := FeedResult{Feed: feed, Duration: time.Since(start)}
	now := time.Now()

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Logout or auth loss cancelled the tick; the feed itself is fine.
			res.Outcome = Discarded
			p.logger.Debug("fetch cancelled",
				zap.Uint64("seq", seq),
				zap.String("feed", string(feed)),
			)
			return res
		}
		res.Err = err
		if errors.Is(err, client.ErrAuthExpired) {
			res.Outcome = AuthFailed
			if p.guard.Expire(gen, fmt.Sprintf("401 on %s", feed)) {
				p.logger.Warn("authorization lost during poll", zap.Uint64("seq", seq), zap.String("feed", string(feed)))
			}
			return res
		}
		res.Outcome = Failed
		p.health[feed].recordFailure(err, now)
		p.logger.Warn("fetch failed, keeping previous snapshot",
			zap.Uint64("seq", seq),
			zap.String("feed", string(feed)),
			zap.Error(err),
		)
		return res
	}

	if p.commit(seq, gen, apply) {
		res.Outcome = Committed
		p.health[feed].recordSuccess(now)
	} else {
		res.Outcome = Discarded
		p.logger.Info("discarding superseded result",
			zap.Uint64("seq", seq),
			zap.String("feed", string(feed)),
		)
	}
	return res
}

// commit applies a fetch result only when seq is still the latest issued
// tick and gen the live login. The check and the write happen under the
// same lock that issues ticks, so an older tick can never overwrite a
// newer one.
func (p *Poller) commit(seq, gen uint64, apply func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.seq || !p.guard.Current(gen) {
		return false
	}
	apply()
	return true
}
