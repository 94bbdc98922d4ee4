package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kmpdu/evote/internal/app"
	"github.com/kmpdu/evote/internal/browser"
	"github.com/kmpdu/evote/internal/logger"
)

// listenForKeyboard puts the terminal in raw mode and dispatches single key
// presses until stdin closes or quit is pressed
func listenForKeyboard(ctx context.Context, quit context.CancelFunc, a *app.App, appLog logger.Logger) {
	restore, err := makeRaw(int(os.Stdin.Fd()))
	if err != nil {
		// Not a terminal
		return
	}
	defer restore()

	buf := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := os.Stdin.Read(buf)
		if err == io.EOF {
			return
		}
		if err != nil || n == 0 {
			continue
		}
		if handleKey(ctx, strings.ToLower(string(buf[0])), a, appLog) {
			fmt.Printf("%sShutting down server...%s\n", yellow, reset)
			quit()
			return
		}
	}
}

// handleKey runs the action bound to key and reports whether the server should stop
func handleKey(ctx context.Context, key string, a *app.App, appLog logger.Logger) bool {
	switch key {
	case "r":
		url := a.BaseURL(ctx) + "/api/results"
		fmt.Printf("%sOpening results in browser...%s\n", cyan, reset)
		if err := browser.Open(url); err != nil {
			fmt.Printf("%sError opening browser: %v%s\n", red, err, reset)
		}
	case "s":
		st := a.Manager().Ledger().Stats()
		fmt.Printf("%sTurnout: %s%d/%d (%.1f%%)%s, %d active positions, %d open sessions\n",
			green, yellow, st.TotalVotesCast, st.TotalEligible, st.TurnoutPercentage, reset,
			st.ActivePositions, a.Manager().Count())
	case "c":
		report, err := a.Manager().Reconcile(ctx)
		if err != nil {
			fmt.Printf("%sReconcile failed: %v%s\n", red, err, reset)
			break
		}
		fmt.Printf("%sReconciled %d of %d queued votes (%d failed)%s\n",
			green, report.Reconciled, report.Attempted, report.Failed, reset)
	case "h":
		if appLog.IsHTTPLoggingEnabled() {
			appLog.DisableHTTPLogging()
			fmt.Printf("%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			appLog.EnableHTTPLogging()
			fmt.Printf("%sHTTP logging enabled%s\n", green, reset)
		}
	case "l":
		fmt.Printf("%sLog level: %s%s%s\n", green, yellow, cycleLogLevel(appLog), reset)
	case "?":
		printKeyboardHelp()
	case "q", "\x03": // q or Ctrl+C
		return true
	}
	return false
}
