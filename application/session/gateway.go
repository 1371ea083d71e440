// Package session manages browser session acquisition and release
// through the profile control API.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"questfarm-go/infrastructure/browser"
	"questfarm-go/infrastructure/controlapi"
	"questfarm-go/infrastructure/logging"
)

// ErrReleaseUncertain signals that a session's browser may still be
// running after release: the graceful detach happened but the forced
// stop could not be confirmed.
var ErrReleaseUncertain = errors.New("browser may still be running")

// ControlAPI is the subset of the control API client the gateway needs.
type ControlAPI interface {
	Active(ctx context.Context, serial string) (bool, error)
	Start(ctx context.Context, serial string, headless bool) (*controlapi.Endpoint, error)
	Stop(ctx context.Context, serial string) error
}

// Config holds gateway configuration.
type Config struct {
	API ControlAPI

	// NewDriver builds a fresh driver per session.
	NewDriver func() browser.Driver

	// ClosePollInterval is how often to re-check a still-open browser.
	ClosePollInterval time.Duration

	// CloseWaitTimeout bounds waiting for an open browser to close on
	// its own before it is stopped by force.
	CloseWaitTimeout time.Duration

	Logger *slog.Logger
}

// Gateway hands out exclusive browser sessions for account profiles.
type Gateway struct {
	api       ControlAPI
	newDriver func() browser.Driver
	pollEvery time.Duration
	waitMax   time.Duration
	log       *slog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

const (
	acquireAttempts  = 3
	acquireRetryWait = 5 * time.Second

	viewportWidth  = 600
	viewportHeight = 720
)

// NewGateway creates a session gateway.
func NewGateway(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Gateway{
		api:       cfg.API,
		newDriver: cfg.NewDriver,
		pollEvery: cfg.ClosePollInterval,
		waitMax:   cfg.CloseWaitTimeout,
		log:       logger,
		sleep:     sleepCtx,
	}
}

// Session is an exclusive attachment to one account's browser.
type Session struct {
	account string
	drv     browser.Driver

	gw       *Gateway
	released atomic.Bool
}

// Account returns the account serial the session belongs to.
func (s *Session) Account() string { return s.account }

// Driver returns the attached browser driver.
func (s *Session) Driver() browser.Driver { return s.drv }

// Acquire starts the account's browser profile and attaches a driver to
// it. Accounts past all quests run headless; the rest get a visible
// window. An already-open browser is waited out first, then stopped by
// force if it never closes.
func (g *Gateway) Acquire(ctx context.Context, account string, questComplete bool) (*Session, error) {
	if err := g.waitBrowserClosed(ctx, account); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= acquireAttempts; attempt++ {
		if attempt > 1 {
			if err := g.sleep(ctx, acquireRetryWait); err != nil {
				return nil, err
			}
		}

		session, err := g.tryStart(ctx, account, questComplete)
		if err == nil {
			return session, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		g.log.Warn("session acquire attempt failed",
			"account", account, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("acquire session for %s: %w", account, lastErr)
}

func (g *Gateway) tryStart(ctx context.Context, account string, questComplete bool) (*Session, error) {
	endpoint, err := g.api.Start(ctx, account, questComplete)
	if err != nil {
		return nil, err
	}

	drv := g.newDriver()
	if err := drv.AttachRemote(ctx, endpoint.WebSocket); err != nil {
		g.stopQuietly(account)
		return nil, err
	}
	if err := drv.SetViewport(ctx, viewportWidth, viewportHeight); err != nil {
		_ = drv.Detach()
		g.stopQuietly(account)
		return nil, err
	}

	session := &Session{account: account, drv: drv, gw: g}
	g.log.Info("session acquired", "account", account, "headless", questComplete)
	return session, nil
}

// waitBrowserClosed waits for a previously opened browser window to be
// closed by hand. If the window outlives the timeout it is stopped
// through the API instead.
func (g *Gateway) waitBrowserClosed(ctx context.Context, account string) error {
	active, err := g.api.Active(ctx, account)
	if err != nil {
		return fmt.Errorf("check browser state for %s: %w", account, err)
	}
	if !active {
		return nil
	}

	g.log.Info("waiting for open browser to close", "account", account)
	deadline := time.Now().Add(g.waitMax)
	for time.Now().Before(deadline) {
		if err := g.sleep(ctx, g.pollEvery); err != nil {
			return err
		}
		active, err := g.api.Active(ctx, account)
		if err != nil {
			return fmt.Errorf("check browser state for %s: %w", account, err)
		}
		if !active {
			return nil
		}
	}

	g.log.Warn("browser still open after wait, forcing stop", "account", account)
	if err := g.api.Stop(ctx, account); err != nil {
		return fmt.Errorf("force stop browser for %s: %w", account, err)
	}
	return nil
}

// stopQuietly stops the profile on a background context so cleanup is
// not skipped when the caller's context is already cancelled.
func (g *Gateway) stopQuietly(account string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := g.api.Stop(ctx, account); err != nil {
		g.log.Warn("cleanup stop failed", "account", account, "error", err)
	}
}

// Release detaches the driver and makes sure the browser is stopped.
// It is idempotent: only the first call does any work. Errors from the
// graceful path are swallowed; only an unconfirmed stop is reported.
func (s *Session) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.drv.Detach(); err != nil {
		s.gw.log.Warn("graceful detach failed", "account", s.account, "error", err)
	}

	// Run the stop on its own context: release must happen even when
	// the run's context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	active, err := s.gw.api.Active(ctx, s.account)
	if err == nil && !active {
		s.gw.log.Info("session released", "account", s.account)
		return nil
	}

	if err := s.gw.api.Stop(ctx, s.account); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReleaseUncertain, s.account, err)
	}
	s.gw.log.Info("session released", "account", s.account)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
