package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// replaced in tests
var goos = func() string { return runtime.GOOS }

// browserCommands maps GOOS to the launcher invocation for that platform.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"windows": {"cmd", "/c", "start"},
}

// OpenBrowser opens url in the system's default browser. The authorization
// consent step is the only caller.
func OpenBrowser(url string) error {
	argv, ok := browserCommands[goos()]
	if !ok {
		return fmt.Errorf("no browser launcher for platform %s", goos())
	}

	if err := exec.Command(argv[0], append(argv[1:], url)...).Start(); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	return nil
}
