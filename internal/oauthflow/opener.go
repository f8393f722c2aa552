package oauthflow

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync/atomic"
)

// Window is an authorization window opened by an Opener.
type Window interface {
	// Closed reports whether the user closed the window.
	Closed() bool
	// Close closes the window if the opener is able to.
	Close() error
}

// Opener opens url in a new authorization window. Returning an error or
// a nil Window means the window was blocked.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (Window, error) {
	return f(ctx, url)
}

// detachedWindow is a window the process cannot observe. It reports closed
// only after Close.
type detachedWindow struct {
	closed atomic.Bool
}

func (w *detachedWindow) Closed() bool { return w.closed.Load() }

func (w *detachedWindow) Close() error {
	w.closed.Store(true)
	return nil
}

// BrowserOpener opens the consent page in the system browser.
type BrowserOpener struct{}

// Open launches the platform browser command for url.
func (BrowserOpener) Open(ctx context.Context, url string) (Window, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	// reap the launcher; the browser itself outlives it
	go func() { _ = cmd.Wait() }()
	return &detachedWindow{}, nil
}

// PrintOpener writes the consent URL for the user to open manually.
type PrintOpener struct {
	W io.Writer
}

// Open prints url.
func (p PrintOpener) Open(_ context.Context, url string) (Window, error) {
	if _, err := fmt.Fprintf(p.W, "Open this URL in your browser to authorize calendar access:\n\n  %s\n\n", url); err != nil {
		return nil, err
	}
	return &detachedWindow{}, nil
}

// FallbackOpener tries Primary and uses Secondary when Primary is blocked.
type FallbackOpener struct {
	Primary   Opener
	Secondary Opener
}

func (f FallbackOpener) Open(ctx context.Context, url string) (Window, error) {
	w, err := f.Primary.Open(ctx, url)
	if err == nil && w != nil {
		return w, nil
	}
	return f.Secondary.Open(ctx, url)
}
