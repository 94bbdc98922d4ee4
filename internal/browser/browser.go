package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Commander is an interface for executing commands (for testing)
type Commander interface {
	Start(name string, args ...string) error
}

// RealCommander executes actual commands
type RealCommander struct{}

// Start executes a command and starts it
func (RealCommander) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Start()
}

var defaultCommander Commander = RealCommander{}

// Open opens the specified URL in the default browser
func Open(rawURL string) error {
	return OpenWithCommander(rawURL, defaultCommander, runtime.GOOS)
}

// OpenWithCommander opens the URL using the specified commander and OS (for testing).
// Only absolute http and https URLs are passed to the platform opener.
func OpenWithCommander(rawURL string, commander Commander, goos string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open %q: not an http(s) url", rawURL)
	}

	var name string
	var args []string

	switch goos {
	case "linux":
		name = "xdg-open"
		args = []string{rawURL}
	case "darwin": // macOS
		name = "open"
		args = []string{rawURL}
	case "windows":
		name = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", rawURL}
	default:
		return fmt.Errorf("unsupported platform: %s", goos)
	}

	return commander.Start(name, args...)
}
