package stream

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nominal-io/connect/errors"
	"github.com/nominal-io/connect/metric"
	"github.com/nominal-io/connect/pkg/retry"
)

// Poll cadence for the listener loop.
const (
	// receiveTimeout bounds each blocking receive on the subscription.
	receiveTimeout = 100 * time.Millisecond
	// idlePoll is how often the listener re-checks the running flag
	// while streaming is stopped.
	idlePoll = 100 * time.Millisecond
	// receivePause spaces out consecutive receive attempts.
	receivePause = 10 * time.Millisecond
)

// Receiver is a timeout-bounded message source. natsclient.Subscription
// implements it.
type Receiver interface {
	Receive(timeout time.Duration) ([]byte, error)
}

// RunState reports whether streaming is active. Manager implements it.
type RunState interface {
	IsRunning() bool
}

// Listener consumes telemetry messages from a Receiver and hands them
// off to the Store through a bounded channel. It connects once at
// startup and runs for the lifetime of the process; while streaming is
// stopped it idles without consuming.
type Listener struct {
	connect func() (Receiver, error)
	handoff chan<- Data
	state   RunState
	logger  *slog.Logger
	metrics *metric.Metrics
	retry   retry.Config
}

// ListenerDeps carries the Listener's collaborators. Connect is invoked
// once from Run to establish the subscription.
type ListenerDeps struct {
	Connect func() (Receiver, error)
	Handoff chan<- Data
	State   RunState
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Retry   retry.Config
}

// NewListener creates a listener. Run must be called to start consuming.
func NewListener(deps ListenerDeps) *Listener {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "stream.listener")
	}
	cfg := deps.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.Quick()
	}
	return &Listener{
		connect: deps.Connect,
		handoff: deps.Handoff,
		state:   deps.State,
		logger:  logger,
		metrics: deps.Metrics,
		retry:   cfg,
	}
}

// Run connects and consumes until ctx is cancelled. If the connection
// cannot be established even with retries, Run logs the failure and
// returns: ingestion stays disabled but the rest of the engine keeps
// working.
func (l *Listener) Run(ctx context.Context) {
	var recv Receiver
	err := retry.Do(ctx, l.retry, func() error {
		r, err := l.connect()
		if err != nil {
			return err
		}
		recv = r
		return nil
	})
	if err != nil {
		l.logger.Error("Telemetry connection failed, ingestion disabled", "error", err)
		if l.metrics != nil {
			l.metrics.RecordError("listener", "connect")
		}
		return
	}
	if l.metrics != nil {
		l.metrics.RecordNATSStatus(true)
	}
	l.logger.Info("Telemetry listener connected")

	for {
		if ctx.Err() != nil {
			return
		}

		if !l.state.IsRunning() {
			l.sleep(ctx, idlePoll)
			continue
		}

		raw, err := recv.Receive(receiveTimeout)
		switch {
		case err == nil:
			l.dispatch(ctx, raw)
		case stderrors.Is(err, errors.ErrReceiveTimeout):
			// Nothing queued, fall through to the pause.
		default:
			l.logger.Warn("Telemetry receive failed", "error", err)
			if l.metrics != nil {
				l.metrics.RecordError("listener", "receive")
			}
		}

		l.sleep(ctx, receivePause)
	}
}

func (l *Listener) dispatch(ctx context.Context, raw []byte) {
	if l.metrics != nil {
		l.metrics.RecordTelemetryReceived()
	}

	d, err := ParseData(raw)
	if err != nil {
		l.logger.Warn("Discarding malformed telemetry message", "error", err)
		if l.metrics != nil {
			l.metrics.RecordTelemetryDropped("parse_error")
		}
		return
	}
	if l.metrics != nil {
		l.metrics.RecordTelemetryParsed()
	}

	// Blocking send: when the hand-off channel is full the listener
	// waits, which back-pressures ingestion until the next drain.
	select {
	case l.handoff <- d:
	case <-ctx.Done():
	}
}

func (l *Listener) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
