//go:build !darwin && !linux && !windows

package activity

import (
	"context"
	"fmt"
	"runtime"
)

type systemProbe struct{}

func NewSystemProbe() Probe {
	return systemProbe{}
}

func (systemProbe) Foreground(context.Context) (Window, error) {
	return Window{}, fmt.Errorf("%w: unsupported platform %s", ErrAcquisition, runtime.GOOS)
}
