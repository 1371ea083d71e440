package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"questfarm-go/infrastructure/browser"
	"questfarm-go/infrastructure/controlapi"
)

type fakeAPI struct {
	activeResults []bool
	activeErr     error
	activeCalls   int

	startErrs  []error
	startCalls int

	stopCalls int
	stopErr   error
}

func (f *fakeAPI) Active(ctx context.Context, serial string) (bool, error) {
	f.activeCalls++
	if f.activeErr != nil {
		return false, f.activeErr
	}
	if len(f.activeResults) == 0 {
		return false, nil
	}
	result := f.activeResults[0]
	if len(f.activeResults) > 1 {
		f.activeResults = f.activeResults[1:]
	}
	return result, nil
}

func (f *fakeAPI) Start(ctx context.Context, serial string, headless bool) (*controlapi.Endpoint, error) {
	f.startCalls++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &controlapi.Endpoint{WebSocket: "ws://fake"}, nil
}

func (f *fakeAPI) Stop(ctx context.Context, serial string) error {
	f.stopCalls++
	return f.stopErr
}

type fakeDriver struct {
	browser.Driver
	attachErr  error
	attached   bool
	detachErr  error
	detached   bool
}

func (d *fakeDriver) AttachRemote(ctx context.Context, wsURL string) error {
	if d.attachErr != nil {
		return d.attachErr
	}
	d.attached = true
	return nil
}

func (d *fakeDriver) Detach() error {
	d.detached = true
	return d.detachErr
}

func (d *fakeDriver) SetViewport(ctx context.Context, w, h int) error { return nil }

func newTestGateway(api *fakeAPI, drv *fakeDriver) *Gateway {
	g := NewGateway(Config{
		API:               api,
		NewDriver:         func() browser.Driver { return drv },
		ClosePollInterval: time.Millisecond,
		CloseWaitTimeout:  10 * time.Millisecond,
	})
	g.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return g
}

func TestGateway_Acquire(t *testing.T) {
	api := &fakeAPI{}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	session, err := g.Acquire(context.Background(), "101", false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if session.Account() != "101" {
		t.Errorf("Account() = %q", session.Account())
	}
	if !drv.attached {
		t.Error("driver was never attached")
	}
	if api.startCalls != 1 {
		t.Errorf("startCalls = %d, want 1", api.startCalls)
	}
}

func TestGateway_Acquire_RetriesStart(t *testing.T) {
	api := &fakeAPI{startErrs: []error{errors.New("busy"), errors.New("busy"), nil}}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	if _, err := g.Acquire(context.Background(), "101", false); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if api.startCalls != 3 {
		t.Errorf("startCalls = %d, want 3", api.startCalls)
	}
}

func TestGateway_Acquire_GivesUpAfterRetries(t *testing.T) {
	api := &fakeAPI{startErrs: []error{errors.New("busy"), errors.New("busy"), errors.New("busy")}}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	if _, err := g.Acquire(context.Background(), "101", false); err == nil {
		t.Fatal("Acquire() should fail after exhausting retries")
	}
	if api.startCalls != 3 {
		t.Errorf("startCalls = %d, want 3", api.startCalls)
	}
}

func TestGateway_Acquire_StopsPartialOnAttachFailure(t *testing.T) {
	api := &fakeAPI{}
	drv := &fakeDriver{attachErr: errors.New("refused")}
	g := newTestGateway(api, drv)

	if _, err := g.Acquire(context.Background(), "101", false); err == nil {
		t.Fatal("Acquire() should fail when the driver cannot attach")
	}
	if api.stopCalls == 0 {
		t.Error("started browser was not stopped after attach failure")
	}
}

func TestGateway_Acquire_WaitsForOpenBrowser(t *testing.T) {
	api := &fakeAPI{activeResults: []bool{true, true, false}}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	if _, err := g.Acquire(context.Background(), "101", false); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if api.activeCalls < 3 {
		t.Errorf("activeCalls = %d, want at least 3", api.activeCalls)
	}
	if api.stopCalls != 0 {
		t.Error("browser was force-stopped although it closed in time")
	}
}

func TestGateway_Acquire_ForcesStopAfterWaitTimeout(t *testing.T) {
	api := &fakeAPI{activeResults: []bool{true}}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	if _, err := g.Acquire(context.Background(), "101", false); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if api.stopCalls == 0 {
		t.Error("browser open past the wait timeout was not stopped")
	}
}

func TestGateway_Acquire_Cancelled(t *testing.T) {
	api := &fakeAPI{activeResults: []bool{true}}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Acquire(ctx, "101", false); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestSession_Release_Idempotent(t *testing.T) {
	api := &fakeAPI{}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	session, err := g.Acquire(context.Background(), "101", false)
	if err != nil {
		t.Fatal(err)
	}

	if err := session.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	firstStops := api.stopCalls

	if err := session.Release(); err != nil {
		t.Fatalf("second Release() error: %v", err)
	}
	if api.stopCalls != firstStops {
		t.Error("second Release() did more work")
	}
	if !drv.detached {
		t.Error("driver was never detached")
	}
}

func TestSession_Release_SwallowsDetachError(t *testing.T) {
	api := &fakeAPI{}
	drv := &fakeDriver{detachErr: errors.New("gone")}
	g := newTestGateway(api, drv)

	session, err := g.Acquire(context.Background(), "101", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Release(); err != nil {
		t.Errorf("Release() error = %v, want nil despite detach failure", err)
	}
}

func TestSession_Release_UncertainWhenStopFails(t *testing.T) {
	api := &fakeAPI{activeResults: []bool{false, true}, stopErr: errors.New("api down")}
	drv := &fakeDriver{}
	g := newTestGateway(api, drv)

	session, err := g.Acquire(context.Background(), "101", false)
	if err != nil {
		t.Fatal(err)
	}
	err = session.Release()
	if !errors.Is(err, ErrReleaseUncertain) {
		t.Errorf("Release() error = %v, want ErrReleaseUncertain", err)
	}
}
