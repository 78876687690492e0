//go:build linux

package activity

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type systemProbe struct{}

// NewSystemProbe returns the probe for the running platform. On Linux it
// relies on xdotool, so it only works under X11 or XWayland.
func NewSystemProbe() Probe {
	return systemProbe{}
}

func (systemProbe) Foreground(ctx context.Context) (Window, error) {
	id, err := xdotool(ctx, "getactivewindow")
	if err != nil {
		return Window{}, err
	}
	title, err := xdotool(ctx, "getwindowname", id)
	if err != nil {
		return Window{}, err
	}
	pid, err := xdotool(ctx, "getwindowpid", id)
	if err != nil {
		// Some windows have no _NET_WM_PID; keep the title.
		return Window{App: UnknownApp, Title: title}, nil
	}

	comm, err := os.ReadFile("/proc/" + pid + "/comm")
	if err != nil {
		return Window{App: UnknownApp, Title: title}, nil
	}
	return Window{App: strings.TrimSpace(string(comm)), Title: title}, nil
}

func xdotool(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "xdotool", args...).Output()
	if err != nil {
		return "", fmt.Errorf("%w: xdotool %s: %v", ErrAcquisition, args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
