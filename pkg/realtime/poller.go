package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
)

// DefaultPollInterval paces the polling fallback when no interval is
// configured.
const DefaultPollInterval = 5 * time.Second

// statePath is the transaction-state resource the poller diffs.
const statePath = "/transaction-state"

// Poller is the HTTP-polling Source. It repeatedly fetches the
// transaction-state resource and derives the realtime events from the
// difference between successive snapshots:
//
//   - state stays pending but an enrollment appears -> enrollment:confirmed
//   - state becomes accepted -> login:complete, polling stops
//   - state becomes rejected -> login:rejected, polling stops
type Poller struct {
	emitterCore

	client   *apix.Client
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// stateSnapshot is the polled resource's wire shape.
type stateSnapshot struct {
	TxID       string         `json:"txId"`
	State      string         `json:"state"` // pending, accepted, rejected
	Signature  string         `json:"signature,omitempty"`
	Method     string         `json:"method,omitempty"`
	Enrollment *DeviceAccount `json:"enrollment,omitempty"`
}

// NewPoller creates a polling source over client. interval <= 0 uses
// DefaultPollInterval.
func NewPoller(client *apix.Client, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		emitterCore: newEmitterCore(),
		client:      client,
		interval:    interval,
		logger:      logger,
	}
}

// Connect starts the polling loop. Calling Connect on a poller that is
// already running is a no-op; onReady fires either way.
func (p *Poller) Connect(ctx context.Context, token string, onReady func()) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		if onReady != nil {
			onReady()
		}
		return nil
	}
	p.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(loopCtx, token)

	if onReady != nil {
		onReady()
	}
	return nil
}

// Close stops the polling loop. Safe to call more than once.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.started = false
	return nil
}

func (p *Poller) loop(ctx context.Context, token string) {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)

	var prev stateSnapshot
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		var snap stateSnapshot
		err := p.client.Get(ctx, statePath, token, &snap)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("transaction-state poll failed", "error", err)
			var apiErr *apix.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
				// The service answered with an error; polling harder
				// will not change its mind.
				p.emit(EventError, ErrorPayload{Message: apiErr.Message, ErrorCode: apiErr.ErrorCode})
				return
			}
			continue
		}

		if done := p.diff(prev, snap); done {
			return
		}
		prev = snap
	}
}

// diff emits the events implied by moving from the previous snapshot to
// the current one. It reports whether polling should stop.
func (p *Poller) diff(prev, cur stateSnapshot) bool {
	if prev.Enrollment == nil && cur.Enrollment != nil {
		p.emit(EventEnrollmentConfirmed, EnrollmentConfirmedPayload{
			TxID:          cur.TxID,
			Method:        cur.Method,
			DeviceAccount: *cur.Enrollment,
		})
	}

	switch cur.State {
	case "accepted":
		p.emit(EventLoginComplete, LoginCompletePayload{
			TxID:      cur.TxID,
			Signature: cur.Signature,
		})
		return true
	case "rejected":
		p.emit(EventLoginRejected, LoginRejectedPayload{TxID: cur.TxID})
		return true
	default:
		return false
	}
}
