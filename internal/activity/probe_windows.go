//go:build windows

package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32             = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW = user32.NewProc("GetWindowTextW")
)

type systemProbe struct{}

// NewSystemProbe returns the probe for the running platform.
func NewSystemProbe() Probe {
	return systemProbe{}
}

func (systemProbe) Foreground(_ context.Context) (Window, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return Window{}, fmt.Errorf("%w: no foreground window", ErrAcquisition)
	}

	title := windowText(hwnd)

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return Window{App: UnknownApp, Title: title}, nil
	}
	app, err := processName(pid)
	if err != nil {
		return Window{App: UnknownApp, Title: title}, nil
	}
	return Window{App: app, Title: title}, nil
}

func windowText(hwnd windows.HWND) string {
	buf := make([]uint16, 512)
	n, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func processName(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	exe := filepath.Base(windows.UTF16ToString(buf[:size]))
	return strings.TrimSuffix(exe, filepath.Ext(exe)), nil
}
