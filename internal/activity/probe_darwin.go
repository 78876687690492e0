//go:build darwin

package activity

import (
	"context"
	"fmt"
	"os/exec"
)

// frontmostScript asks System Events for the frontmost process and, for
// apps with a meaningful document notion, the active tab or document name.
const frontmostScript = `
tell application "System Events"
	set frontApp to name of first application process whose frontmost is true
end tell

if frontApp is "Google Chrome" then
	tell application "Google Chrome"
		set windowTitle to title of active tab of front window
	end tell
else if frontApp is "Safari" then
	tell application "Safari"
		set windowTitle to name of front document
	end tell
else if frontApp is "Microsoft Word" then
	tell application "Microsoft Word"
		if not (exists active document) then
			set windowTitle to "(No document open)"
		else
			set windowTitle to name of active document
		end if
	end tell
else if frontApp is "Preview" then
	tell application "Preview"
		if not (exists front document) then
			set windowTitle to "(No document open)"
		else
			set windowTitle to name of front document
		end if
	end tell
else
	set windowTitle to ""
end if

return frontApp & "|" & windowTitle
`

type systemProbe struct{}

// NewSystemProbe returns the probe for the running platform.
func NewSystemProbe() Probe {
	return systemProbe{}
}

func (systemProbe) Foreground(ctx context.Context) (Window, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", frontmostScript).Output()
	if err != nil {
		return Window{}, fmt.Errorf("%w: osascript: %v", ErrAcquisition, err)
	}
	return parsePipePair(string(out))
}
