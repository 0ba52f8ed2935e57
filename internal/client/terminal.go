package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// TerminalNotifier prints notifications to a terminal. The most recent one
// can be activated with Activate, which stands in for a click.
type TerminalNotifier struct {
	mu         sync.Mutex
	out        io.Writer
	permission Permission
	last       *Notification
}

// NewTerminalNotifier creates a notifier writing to out. A disabled notifier
// reports a denied permission.
func NewTerminalNotifier(out io.Writer, enabled bool) *TerminalNotifier {
	perm := PermissionDefault
	if !enabled {
		perm = PermissionDenied
	}
	return &TerminalNotifier{out: out, permission: perm}
}

func (t *TerminalNotifier) Permission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

// RequestPermission grants unless the notifier was disabled
func (t *TerminalNotifier) RequestPermission(context.Context) (Permission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permission == PermissionDefault {
		t.permission = PermissionGranted
	}
	return t.permission, nil
}

func (t *TerminalNotifier) Show(n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &n

	var b strings.Builder
	fmt.Fprintf(&b, "\r[%s]\n", n.Title)
	for _, line := range strings.Split(n.Body, "\n") {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	b.WriteString("  (/reply to open)\n> ")
	_, err := io.WriteString(t.out, b.String())
	return err
}

// Focus is a no-op; the terminal already has focus when the user types
func (t *TerminalNotifier) Focus() {}

// Activate runs the click action of the most recent notification
func (t *TerminalNotifier) Activate() bool {
	t.mu.Lock()
	n := t.last
	t.last = nil
	t.mu.Unlock()

	if n == nil || n.OnClick == nil {
		return false
	}
	n.OnClick()
	return true
}

// TerminalFeedback rings the terminal bell. Terminals cannot vibrate.
type TerminalFeedback struct {
	Out io.Writer
}

func (f TerminalFeedback) PlaySound() error {
	_, err := io.WriteString(f.Out, "\a")
	return err
}

func (f TerminalFeedback) Vibrate() error {
	return ErrUnsupported
}
