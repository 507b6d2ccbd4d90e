package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lamht/forwarder/internal/logger"
	"github.com/lamht/forwarder/internal/metrics"
	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// Outcome of the most recent publish attempt.
type Outcome struct {
	URL      tunnelurl.TunnelURL `json:"url"`
	At       time.Time           `json:"at"`
	OK       bool                `json:"ok"`
	Status   int                 `json:"status,omitempty"`
	Error    string              `json:"error,omitempty"`
	Duration time.Duration       `json:"duration_ns"`
}

// Snapshot is the pipeline state exposed to the status endpoint.
type Snapshot struct {
	publish.PublishState
	LastAttempt *Outcome `json:"last_attempt,omitempty"`
}

// Pipeline turns tunnel output lines into publishes: each line is scanned
// for a URL, offered to the gate and, when approved, published in the
// background. Lines must be handed over in output order.
type Pipeline struct {
	log       *slog.Logger
	extractor *tunnelurl.Extractor
	gate      *publish.Gate
	publisher publish.Publisher
	// base is the parent context for background publishes. It is not tied
	// to shutdown: an in-flight publish always runs to completion.
	base context.Context

	wg   sync.WaitGroup
	mu   sync.Mutex
	last *Outcome
}

// New returns a pipeline publishing through p. A nil extractor means the
// default pattern.
func New(l *slog.Logger, e *tunnelurl.Extractor, p publish.Publisher) *Pipeline {
	if l == nil {
		l = slog.Default()
	}
	if e == nil {
		e = tunnelurl.Default()
	}
	return &Pipeline{
		log:       l,
		extractor: e,
		gate:      publish.NewGate(),
		publisher: p,
		base:      context.Background(),
	}
}

// HandleLine processes one complete line of tunnel output.
func (p *Pipeline) HandleLine(line string) {
	line = strings.TrimSpace(line)
	u, ok := p.extractor.Extract(line)
	if !ok {
		p.log.Debug("No URL in line", slog.String("line", line))
		return
	}
	metrics.IncDetected()

	if !p.gate.Offer(u) {
		metrics.IncSkipped()
		p.log.Debug("Skip duplicate URL or saving in progress", slog.String("publicUrl", u.String()))
		return
	}

	p.log.Info("Public URL detected", slog.String("publicUrl", u.String()))
	p.wg.Add(1)
	go p.publish(u)
}

func (p *Pipeline) publish(u tunnelurl.TunnelURL) {
	defer p.wg.Done()
	defer p.gate.Done()

	start := time.Now()
	err := p.publisher.Publish(p.base, u)
	elapsed := time.Since(start)

	out := &Outcome{URL: u, At: time.Now(), OK: err == nil, Duration: elapsed}
	switch status, rejected := publish.IsRemoteRejected(err); {
	case err == nil:
		metrics.ObservePublish(metrics.ResultOK, elapsed.Seconds())
		p.log.Info("Firebase updated", slog.String("url", u.String()), logger.Since(start))
	case rejected:
		out.Status = status
		out.Error = err.Error()
		metrics.ObservePublish(metrics.ResultRejected, elapsed.Seconds())
		p.log.Warn("Firebase write failed", slog.Int("status", status), slog.String("url", u.String()))
	default:
		out.Error = err.Error()
		metrics.ObservePublish(metrics.ResultFailed, elapsed.Seconds())
		p.log.Error("Firebase error", slog.String("error", err.Error()), slog.String("url", u.String()))
	}

	p.mu.Lock()
	p.last = out
	p.mu.Unlock()
}

// Wait blocks until every started publish has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Snapshot returns the gate state and the last publish outcome.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{PublishState: p.gate.State()}
	p.mu.Lock()
	if p.last != nil {
		o := *p.last
		s.LastAttempt = &o
	}
	p.mu.Unlock()
	return s
}

// State returns the gate state.
func (p *Pipeline) State() publish.PublishState { return p.gate.State() }
