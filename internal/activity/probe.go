package activity

import (
	"context"
	"fmt"
	"strings"
)

// parsePipePair splits "app|title" as printed by the platform helpers.
func parsePipePair(out string) (Window, error) {
	app, title, ok := strings.Cut(strings.TrimSpace(out), "|")
	if !ok || strings.TrimSpace(app) == "" {
		return Window{}, fmt.Errorf("%w: unexpected helper output %q", ErrAcquisition, out)
	}
	return Window{App: strings.TrimSpace(app), Title: strings.TrimSpace(title)}, nil
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) (Window, error)

func (f ProbeFunc) Foreground(ctx context.Context) (Window, error) {
	return f(ctx)
}
