package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ChromeDPDriver implements Driver using chromedp attached to a remote
// debugging endpoint.
type ChromeDPDriver struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	frameCtx    context.Context
	frameCancel context.CancelFunc
	attached    bool

	// typeDelay produces the pause between keystrokes in TypeSlowly.
	typeDelay func() time.Duration
}

// NewChromeDPDriver creates a driver that is not yet attached to any browser.
func NewChromeDPDriver() *ChromeDPDriver {
	return &ChromeDPDriver{
		typeDelay: func() time.Duration {
			return time.Duration(100+rand.Intn(201)) * time.Millisecond
		},
	}
}

// AttachRemote connects to the browser at the given DevTools websocket address.
func (d *ChromeDPDriver) AttachRemote(ctx context.Context, wsURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.attached {
		return fmt.Errorf("already attached")
	}

	// Allocator context derives from context.Background() so the
	// connection lifecycle is independent of the caller's context.
	d.allocCtx, d.allocCancel = chromedp.NewRemoteAllocator(context.Background(), wsURL)
	d.ctx, d.cancel = chromedp.NewContext(d.allocCtx)

	// Run an empty task list to establish the connection now rather
	// than on the first real operation.
	connectCtx, cancel := context.WithTimeout(d.ctx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(connectCtx); err != nil {
		d.cleanup()
		return fmt.Errorf("attach to %s: %w", wsURL, err)
	}

	d.attached = true
	return nil
}

// Detach disconnects from the browser without closing it.
func (d *ChromeDPDriver) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return nil
	}
	d.cleanup()
	return nil
}

func (d *ChromeDPDriver) cleanup() {
	d.attached = false
	if d.frameCancel != nil {
		d.frameCancel()
		d.frameCancel = nil
	}
	d.frameCtx = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.ctx = nil
	d.allocCtx = nil
}

// IsAttached returns true if a browser connection is active.
func (d *ChromeDPDriver) IsAttached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// current returns the context operations should run against: the iframe
// context when one is active, the page context otherwise.
func (d *ChromeDPDriver) current() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached || d.ctx == nil {
		return nil, fmt.Errorf("not attached")
	}
	if d.frameCtx != nil {
		return d.frameCtx, nil
	}
	return d.ctx, nil
}

// page returns the top page context regardless of frame targeting.
func (d *ChromeDPDriver) page() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached || d.ctx == nil {
		return nil, fmt.Errorf("not attached")
	}
	return d.ctx, nil
}

// Navigate navigates the active page to the specified URL.
func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	browserCtx, err := d.page()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, 0, chromedp.Navigate(url))
}

// Back navigates the active page one step back in history.
func (d *ChromeDPDriver) Back(ctx context.Context) error {
	browserCtx, err := d.page()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, 0, chromedp.NavigateBack())
}

// SetViewport sets the page viewport size.
func (d *ChromeDPDriver) SetViewport(ctx context.Context, width, height int) error {
	browserCtx, err := d.page()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, 0, chromedp.EmulateViewport(int64(width), int64(height)))
}

// WaitVisible waits up to timeout for an element to become visible.
func (d *ChromeDPDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	browserCtx, err := d.current()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Exists reports whether at least one element matches the selector.
func (d *ChromeDPDriver) Exists(ctx context.Context, selector string) (bool, error) {
	browserCtx, err := d.current()
	if err != nil {
		return false, err
	}
	sel, _ := json.Marshal(selector)
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, sel)
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Click clicks the first element matching the selector.
func (d *ChromeDPDriver) Click(ctx context.Context, selector string) error {
	browserCtx, err := d.current()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, 10*time.Second, chromedp.Click(selector, chromedp.ByQuery))
}

// ClickByText clicks the first button whose text contains any of the given
// labels (case-insensitive).
func (d *ChromeDPDriver) ClickByText(ctx context.Context, labels ...string) error {
	return d.clickMatching(ctx, `button, [role="button"]`, labels)
}

// ClickContaining clicks the first element of any kind whose text contains
// any of the given labels (case-insensitive).
func (d *ChromeDPDriver) ClickContaining(ctx context.Context, labels ...string) error {
	return d.clickMatching(ctx, "*", labels)
}

func (d *ChromeDPDriver) clickMatching(ctx context.Context, selector string, labels []string) error {
	browserCtx, err := d.current()
	if err != nil {
		return err
	}
	sel, _ := json.Marshal(selector)
	wanted, _ := json.Marshal(labels)
	expr := fmt.Sprintf(`(function(sel, labels) {
		labels = labels.map(l => l.toLowerCase());
		const els = document.querySelectorAll(sel);
		for (const el of els) {
			const text = el.textContent.toLowerCase();
			if (labels.some(l => text.includes(l)) && el.children.length === 0) {
				el.scrollIntoView(true);
				el.click();
				return true;
			}
		}
		for (const el of els) {
			const text = el.textContent.toLowerCase();
			if (labels.some(l => text.includes(l))) {
				el.scrollIntoView(true);
				el.click();
				return true;
			}
		}
		return false;
	})(%s, %s)`, sel, wanted)

	var clicked bool
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.Evaluate(expr, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no element matching %v", labels)
	}
	return nil
}

// Eval evaluates a JavaScript expression in the driven frame and
// unmarshals the result into out.
func (d *ChromeDPDriver) Eval(ctx context.Context, expr string, out any) error {
	browserCtx, err := d.current()
	if err != nil {
		return err
	}
	return d.run(ctx, browserCtx, 10*time.Second, chromedp.Evaluate(expr, out))
}

// Text returns the text content of the first matching element.
func (d *ChromeDPDriver) Text(ctx context.Context, selector string) (string, error) {
	browserCtx, err := d.current()
	if err != nil {
		return "", err
	}
	var text string
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

// Texts returns the text content of every matching element.
func (d *ChromeDPDriver) Texts(ctx context.Context, selector string) ([]string, error) {
	browserCtx, err := d.current()
	if err != nil {
		return nil, err
	}
	sel, _ := json.Marshal(selector)
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => el.textContent.trim())`, sel)
	var texts []string
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.Evaluate(expr, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// OuterHTML returns the outer HTML of the first matching element.
func (d *ChromeDPDriver) OuterHTML(ctx context.Context, selector string) (string, error) {
	browserCtx, err := d.current()
	if err != nil {
		return "", err
	}
	var html string
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// TypeSlowly clicks the element and types the text one character at a time
// with a human-like delay between keystrokes.
func (d *ChromeDPDriver) TypeSlowly(ctx context.Context, selector, text string) error {
	browserCtx, err := d.current()
	if err != nil {
		return err
	}
	if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return err
	}
	for _, ch := range text {
		if err := d.run(ctx, browserCtx, 10*time.Second, chromedp.SendKeys(selector, string(ch), chromedp.ByQuery)); err != nil {
			return err
		}
		select {
		case <-time.After(d.typeDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SwitchToAppFrame retargets subsequent operations at the first iframe
// target of the browser. The embedded mini app runs out of process, so
// it shows up as its own target.
func (d *ChromeDPDriver) SwitchToAppFrame(ctx context.Context) error {
	browserCtx, err := d.page()
	if err != nil {
		return err
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}

	var frameID target.ID
	for _, t := range targets {
		if t.Type == "iframe" {
			frameID = t.TargetID
			break
		}
	}
	if frameID == "" {
		return fmt.Errorf("no iframe target found")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameCancel != nil {
		d.frameCancel()
	}
	d.frameCtx, d.frameCancel = chromedp.NewContext(d.ctx, chromedp.WithTargetID(frameID))
	return nil
}

// LeaveFrame retargets subsequent operations back at the top page.
func (d *ChromeDPDriver) LeaveFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameCancel != nil {
		d.frameCancel()
		d.frameCancel = nil
	}
	d.frameCtx = nil
}

// CloseExtraTabs closes every page target except the one currently driven.
func (d *ChromeDPDriver) CloseExtraTabs(ctx context.Context) error {
	browserCtx, err := d.page()
	if err != nil {
		return err
	}

	chromedpCtx := chromedp.FromContext(browserCtx)
	if chromedpCtx == nil || chromedpCtx.Target == nil {
		return fmt.Errorf("no active target")
	}
	keep := chromedpCtx.Target.TargetID

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if t.Type != "page" || t.TargetID == keep {
			continue
		}
		id := t.TargetID
		err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return target.CloseTarget(id).Do(ctx)
		}))
		if err != nil {
			return fmt.Errorf("close tab %s: %w", id, err)
		}
	}
	return nil
}

// run executes actions against browserCtx while honoring the caller's
// context for cancellation. A non-zero timeout bounds the operation.
func (d *ChromeDPDriver) run(ctx context.Context, browserCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	execCtx := browserCtx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(browserCtx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(execCtx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure ChromeDPDriver implements Driver
var _ Driver = (*ChromeDPDriver)(nil)
