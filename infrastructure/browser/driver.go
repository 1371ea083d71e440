// Package browser provides browser automation infrastructure.
package browser

import (
	"context"
	"time"
)

// Driver defines the interface for driving an already-running browser.
// The browser lifecycle belongs to the profile control API; a Driver only
// attaches to the remote debugging endpoint and detaches again.
type Driver interface {
	// AttachRemote connects to the browser at the given DevTools
	// websocket address.
	AttachRemote(ctx context.Context, wsURL string) error

	// Detach disconnects from the browser without closing it.
	Detach() error

	// IsAttached returns true if a browser connection is active.
	IsAttached() bool

	// Navigate navigates the active page to the specified URL.
	Navigate(ctx context.Context, url string) error

	// Back navigates the active page one step back in history.
	Back(ctx context.Context) error

	// SetViewport sets the page viewport size.
	SetViewport(ctx context.Context, width, height int) error

	// WaitVisible waits up to timeout for an element to become visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether at least one element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// ClickByText clicks the first button whose text contains any of
	// the given labels (case-insensitive).
	ClickByText(ctx context.Context, labels ...string) error

	// ClickContaining clicks the first element of any kind whose text
	// contains any of the given labels (case-insensitive).
	ClickContaining(ctx context.Context, labels ...string) error

	// Text returns the text content of the first matching element.
	Text(ctx context.Context, selector string) (string, error)

	// Texts returns the text content of every matching element.
	Texts(ctx context.Context, selector string) ([]string, error)

	// OuterHTML returns the outer HTML of the first matching element.
	OuterHTML(ctx context.Context, selector string) (string, error)

	// TypeSlowly clicks the element and types the text one character at
	// a time with a human-like delay between keystrokes.
	TypeSlowly(ctx context.Context, selector, text string) error

	// SwitchToAppFrame retargets subsequent operations at the first
	// iframe of the page. Used to reach the embedded mini app.
	SwitchToAppFrame(ctx context.Context) error

	// LeaveFrame retargets subsequent operations back at the top page.
	LeaveFrame()

	// CloseExtraTabs closes every page target except the one currently
	// driven.
	CloseExtraTabs(ctx context.Context) error

	// Eval evaluates a JavaScript expression in the driven frame and
	// unmarshals the result into out.
	Eval(ctx context.Context, expr string, out any) error
}
