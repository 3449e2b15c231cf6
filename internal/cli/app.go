package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/sentinel/pkg/apix"
	"github.com/aussiebroadwan/sentinel/pkg/mfa"
	"github.com/aussiebroadwan/sentinel/pkg/realtime"
	"github.com/aussiebroadwan/sentinel/pkg/slogx"
	"github.com/aussiebroadwan/sentinel/pkg/statecache"
	"github.com/aussiebroadwan/sentinel/pkg/tokenx"
)

const BuildVersion = "v0.1.0"

// SessionOptions select what the session should do, parsed from flags.
type SessionOptions struct {
	ResumeKey string // resume a cached transaction instead of starting fresh
	StartFile string // path to a start-flow response JSON, "-" for stdin

	Method       string // factor to enroll or verify with; empty picks the default
	PhoneNumber  string // phone number for SMS enrollment
	Code         string // one-time code to confirm or verify with
	RecoveryCode string // recovery code; implies recovery instead of factor auth
}

// Application wires the SDK pieces into a diagnostic command-line
// session against a verification service.
type Application struct {
	cfg    Config
	logger *slog.Logger
	client *apix.Client
	cache  *statecache.Store
}

// New initializes the application and its state cache.
func New(cfg Config) (*Application, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("SENTINEL_BASE_URL is required")
	}

	logger := slogx.New(slogx.Config{
		Component: "sentinel-cli",
		Version:   BuildVersion,
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})

	client := apix.New(cfg.BaseURL)
	client.Logger = logger

	cache, err := statecache.New(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	if err := cache.ApplyMigrations(); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to migrate state cache: %w", err)
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		client: client,
		cache:  cache,
	}, nil
}

// Close releases the application's resources.
func (a *Application) Close() error { return a.cache.Close() }

func (a *Application) source() realtime.Source {
	switch a.cfg.Transport {
	case "poller":
		return realtime.NewPoller(a.client, a.cfg.PollInterval, a.logger)
	case "manual":
		return realtime.NewManual()
	default:
		return realtime.NewStream(a.cfg.BaseURL, nil, a.logger)
	}
}

// Run drives one MFA session to a terminal event and persists the
// transaction across the ride so it can be resumed after a restart.
func (a *Application) Run(ctx context.Context, opts SessionOptions) error {
	if _, err := a.cache.Prune(ctx, a.cfg.StateMaxAge); err != nil {
		a.logger.Warn("state cache prune failed", "error", err)
	}

	tx, err := a.transaction(opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.End() }()

	key, err := cacheKey(tx)
	if err != nil {
		return err
	}

	done := make(chan struct{}, 1)
	finish := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	tx.On(mfa.EventEnrollmentComplete, func(payload any) {
		p, _ := payload.(mfa.EnrollmentCompletePayload)
		a.logger.Info("enrollment complete",
			"enrollment_id", p.Enrollment.ID,
			"auth_required", p.AuthRequired,
		)
		if p.RecoveryCode != "" {
			fmt.Printf("recovery code (store it safely): %s\n", p.RecoveryCode)
		}
		a.persist(ctx, key, tx)
		if !p.AuthRequired {
			finish()
		}
	})
	tx.On(mfa.EventAuthResponse, func(payload any) {
		p, _ := payload.(mfa.AuthResponsePayload)
		a.logger.Info("authentication answered", "accepted", p.Accepted)
		if p.Accepted {
			fmt.Printf("signature: %s\n", p.Signature)
			_ = a.cache.Delete(ctx, key)
		}
		finish()
	})
	tx.On(mfa.EventTimeout, func(any) {
		a.logger.Warn("transaction token expired, restart the flow")
		_ = a.cache.Delete(ctx, key)
		finish()
	})
	tx.On(mfa.EventError, func(payload any) {
		a.logger.Error("transaction error", "error", payload)
		finish()
	})

	if err := tx.Connect(ctx, func() {
		a.logger.Debug("realtime source ready")
	}); err != nil {
		return fmt.Errorf("failed to connect realtime source: %w", err)
	}

	if err := a.drive(ctx, tx, opts); err != nil {
		return err
	}
	a.persist(ctx, key, tx)

	select {
	case <-done:
	case <-ctx.Done():
		a.persist(context.WithoutCancel(ctx), key, tx)
		a.logger.Info("interrupted, transaction saved", "key", key)
	}
	return nil
}

// drive issues the enrollment or authentication this session was asked
// to perform.
func (a *Application) drive(ctx context.Context, tx *mfa.Transaction, opts SessionOptions) error {
	if opts.RecoveryCode != "" {
		_, err := tx.Recover(ctx, mfa.Input{RecoveryCode: opts.RecoveryCode})
		return err
	}

	if !tx.IsEnrolled() {
		method := opts.Method
		if method == "" {
			factors := tx.EnrollmentFlow().AvailableFactors()
			if len(factors) == 0 {
				return fmt.Errorf("service advertises no enrollable factor")
			}
			method = factors[0]
		}

		step, err := tx.Enroll(ctx, method, mfa.Input{PhoneNumber: opts.PhoneNumber})
		if err != nil {
			return err
		}
		if uri, err := step.URI(); err == nil && uri != "" {
			fmt.Printf("scan to enroll: %s\n", uri)
		}
		if opts.Code != "" {
			return step.Confirm(ctx, mfa.Input{OTPCode: opts.Code})
		}
		a.logger.Info("waiting for enrollment confirmation", "method", method)
		return nil
	}

	enrollment := tx.Enrollments()[0]
	step, err := tx.RequestAuth(ctx, enrollment, opts.Method, mfa.Input{})
	if err != nil {
		return err
	}
	if opts.Code != "" {
		return step.Verify(ctx, mfa.Input{OTPCode: opts.Code})
	}
	a.logger.Info("waiting for verification", "method", step.Method())
	return nil
}

// transaction builds the session's transaction, either fresh from a
// start-flow response or resumed from the state cache.
func (a *Application) transaction(opts SessionOptions) (*mfa.Transaction, error) {
	cfg := mfa.Config{
		Client: a.client,
		Source: a.source(),
		Logger: a.logger,
	}

	if opts.ResumeKey != "" {
		state, err := a.cache.Load(context.Background(), opts.ResumeKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resume transaction %q: %w", opts.ResumeKey, err)
		}
		return mfa.Restore(cfg, state)
	}

	resp, err := readStartFlow(opts.StartFile)
	if err != nil {
		return nil, err
	}
	return mfa.New(cfg, a.cfg.BaseURL, resp)
}

func (a *Application) persist(ctx context.Context, key string, tx *mfa.Transaction) {
	if err := a.cache.Save(ctx, key, tx.Serialize()); err != nil {
		a.logger.Warn("failed to persist transaction", "error", err)
	}
}

func cacheKey(tx *mfa.Transaction) (string, error) {
	token, err := tokenx.Parse(tx.Token())
	if err != nil {
		return "", fmt.Errorf("failed to derive cache key: %w", err)
	}
	if id := token.TxID(); id != "" {
		return id, nil
	}
	return tx.Token(), nil
}

func readStartFlow(path string) (mfa.StartFlowResponse, error) {
	var resp mfa.StartFlowResponse

	if path == "" {
		return resp, fmt.Errorf("either -start or -resume is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return resp, fmt.Errorf("failed to read start-flow response: %w", err)
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("failed to parse start-flow response: %w", err)
	}
	return resp, nil
}
