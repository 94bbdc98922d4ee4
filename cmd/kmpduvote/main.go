package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kmpdu/evote/internal/app"
	"github.com/kmpdu/evote/internal/browser"
	"github.com/kmpdu/evote/internal/config"
	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

var (
	version = "dev"
)

// showLogo prints the KMPDU banner
func showLogo() {
	width := 62
	border := strings.Repeat("═", width)

	logo := []string{
		"   _  ____  __ ____  ____  _   _   _____     __    _        ",
		"  | |/ /  \\/  |  _ \\|  _ \\| | | | | ____|_   _\\___ | |_ ___ ",
		"  | ' /| |\\/| | |_) | | | | | | | |  _| \\ \\ / / _ \\| __/ _ \\",
		"  | . \\| |  | |  __/| |_| | |_| | | |___ \\ V / (_) | ||  __/",
		"  |_|\\_\\_|  |_|_|   |____/ \\___/  |_____| \\_/ \\___/ \\__\\___|",
		"         Kenya Medical Practitioners, Pharmacists & Dentists ",
	}

	fmt.Printf("\n  %s╔%s╗%s\n", cyan, border, reset)
	for _, line := range logo {
		for len([]rune(line)) < width {
			line += " "
		}
		fmt.Printf("  %s║%s%s%s║%s\n", cyan, yellow, line, cyan, reset)
	}
	fmt.Printf("  %s╚%s╝%s\n\n", cyan, border, reset)
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func cycleLogLevel(appLog logger.Logger) string {
	var next string
	switch appLog.GetLevel().String() {
	case "DEBUG":
		next = "info"
	case "INFO":
		next = "warn"
	case "WARN":
		next = "error"
	default:
		next = "debug"
	}
	appLog.SetLevel(logger.ParseLevel(next))
	return next
}

// printKeyboardHelp displays all available keyboard shortcuts
func printKeyboardHelp() {
	fmt.Printf("\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	fmt.Printf("    %sr%s      - Open live results in browser\n", cyan, reset)
	fmt.Printf("    %ss%s      - Print turnout statistics\n", cyan, reset)
	fmt.Printf("    %sc%s      - Reconcile offline votes now\n", cyan, reset)
	fmt.Printf("    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Printf("    %sl%s      - Cycle log level (debug, info, warn, error)\n", cyan, reset)
	fmt.Printf("    %sq%s      - Quit server\n", cyan, reset)
	fmt.Printf("    %s?%s      - Show this help\n\n", cyan, reset)
}

// adminPasswordSource names where the admin password came from
func adminPasswordSource(cfg config.Config) string {
	if cfg.AdminPassword != "" {
		return "KMPDU_ADMIN_PASSWORD"
	}
	return "settings"
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "Vote history (bbolt) path")
	flag.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "KMPDU backend URL (empty queues every vote)")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Public URL encoded in receipt QR codes")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "logformat", cfg.LogFormat, "Log format (text, json)")
	openBrowser := flag.Bool("open", false, "Open live results in a browser after start")
	noKeyboard := flag.Bool("nokeyboard", false, "Disable keyboard shortcuts")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `KMPDU eVote - union election server

Usage:
  kmpduvote [options]

Options:
  -port int         HTTP server port (default 8081, KMPDU_PORT)
  -db string        SQLite database path (default "kmpdu.db", KMPDU_DB_PATH)
  -history string   Vote history path (default "history.db", KMPDU_HISTORY_PATH)
  -api-url string   KMPDU backend URL (KMPDU_API_URL)
  -base-url string  Public URL for receipt QR codes (KMPDU_BASE_URL)
  -loglevel str     Log level: debug, info, warn, error (default "info")
  -logformat str    Log format: text, json (default "text")
  -open             Open live results in a browser after start
  -nokeyboard       Disable keyboard shortcuts
  -version          Show version and exit

Examples:
  kmpduvote                                   # Offline demo on port 8081
  kmpduvote -api-url https://api.kmpdu.org    # Cast votes against the backend
  KMPDU_JWT_SECRET=... kmpduvote -port 80     # Fixed signing secret
  KMPDU_ADMIN_PASSWORD=... kmpduvote          # Fixed admin login password

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("kmpduvote %s\n", version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	showLogo()

	appLog := logger.NewWithOptions(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	var client kmpduapi.Client
	if cfg.APIURL != "" {
		c := kmpduapi.NewHTTPClient(cfg.APIURL, appLog)
		if cfg.APIToken != "" {
			c.SetToken(cfg.APIToken)
		}
		client = c
	} else {
		appLog.Warn("No backend configured, votes will be queued for reconciliation")
	}

	a, err := app.New(appLog, cfg, client)
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}
	defer a.Close()

	if password, generated := a.AdminPassword(); generated {
		appLog.Info("Admin password generated", "password", password)
	} else {
		appLog.Info("Admin password loaded", "source", adminPasswordSource(cfg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *openBrowser {
		go func() {
			// Give the listener a moment to bind
			time.Sleep(200 * time.Millisecond)
			if err := browser.Open(a.BaseURL(ctx) + "/api/results"); err != nil {
				appLog.Warn("Failed to open browser", "error", err)
			}
		}()
	}

	if !*noKeyboard {
		printKeyboardHelp()
		go listenForKeyboard(ctx, stop, a, appLog)
	} else {
		fmt.Printf("\n%sKeyboard shortcuts disabled (use -nokeyboard=false to enable)%s\n\n", yellow, reset)
	}

	if err := a.Run(ctx); err != nil {
		appLog.Error("Server failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}
