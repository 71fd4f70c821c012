package mockserver

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

type alertTemplate struct {
	severity client.Severity
	message  string
	weight   int
}

// The detection pipeline also emits severities outside the
// critical/high/moderate set; "medium" is kept here so clients see it.
var alertMix = []alertTemplate{
	{client.SeverityCritical, "Fall detected", 1},
	{client.SeverityCritical, "No movement for 10 minutes", 1},
	{client.SeverityHigh, "Patient attempting to leave bed", 3},
	{client.SeverityHigh, "Irregular breathing pattern", 2},
	{client.SeverityModerate, "Patient left bed", 4},
	{client.SeverityModerate, "Camera view obstructed", 3},
	{client.Severity("medium"), "Restless movement", 2},
}

// Generator stands in for the detection pipeline: on every interval it
// raises an alert on a random active session and hints the change.
type Generator struct {
	store       *Store
	broadcaster *Broadcaster
	interval    time.Duration
	rng         *rand.Rand
	logger      *zap.Logger
}

// NewGenerator creates an alert generator. seed makes the alert mix
// reproducible.
func NewGenerator(store *Store, broadcaster *Broadcaster, interval time.Duration, seed int64, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:       store,
		broadcaster: broadcaster,
		interval:    interval,
		rng:         rand.New(rand.NewSource(seed)),
		logger:      logger.Named("generator"),
	}
}

func (g *Generator) Start(ctx context.Context) {
	if g.interval <= 0 {
		g.logger.Info("alert generator disabled")
		return
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step raises one alert. It reports false when no session is active.
func (g *Generator) Step() bool {
	active := g.store.ActiveSessionIDs()
	if len(active) == 0 {
		return false
	}
	sessionID := active[g.rng.Intn(len(active))]
	tpl := g.pick()

	a, err := g.store.AddAlert(sessionID, tpl.severity, tpl.message)
	if err != nil {
		g.logger.Warn("alert dropped", zap.Int("session_id", sessionID), zap.Error(err))
		return false
	}
	g.logger.Debug("alert raised",
		zap.Int("alert_id", a.ID),
		zap.Int("session_id", sessionID),
		zap.String("severity", string(a.Severity)),
	)
	if g.broadcaster != nil {
		g.broadcaster.Hint(client.FeedAlerts)
		g.broadcaster.Hint(client.FeedStats)
	}
	return true
}

func (g *Generator) pick() alertTemplate {
	total := 0
	for _, t := range alertMix {
		total += t.weight
	}
	n := g.rng.Intn(total)
	for _, t := range alertMix {
		if n < t.weight {
			return t
		}
		n -= t.weight
	}
	return alertMix[len(alertMix)-1]
}
