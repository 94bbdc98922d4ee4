package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kmpdu/evote/internal/auth"
	"github.com/kmpdu/evote/internal/config"
	"github.com/kmpdu/evote/internal/handlers"
	"github.com/kmpdu/evote/internal/history"
	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/repository"
	"github.com/kmpdu/evote/internal/seed"
	"github.com/kmpdu/evote/internal/services"
	"github.com/kmpdu/evote/internal/websocket"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

const shutdownTimeout = 5 * time.Second

// App holds all application dependencies
type App struct {
	log      logger.Logger
	cfg      config.Config
	handlers *handlers.Handlers
	repo     *repository.Repository
	history  *history.Store
	manager  *services.SessionManager
	hub      *websocket.Hub

	adminPassword string
	passwordIsNew bool

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates and initializes a new application instance. client may be nil,
// in which case ballots come from the built-in positions and every cast is
// queued for reconciliation.
func New(log logger.Logger, cfg config.Config, client kmpduapi.Client) (*App, error) {
	ctx := context.Background()

	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.HistoryPath, log)
	if err != nil {
		repo.Close()
		return nil, err
	}

	fail := func(err error) (*App, error) {
		hist.Close()
		repo.Close()
		return nil, err
	}

	added, err := repo.SeedMembers(ctx, seed.Members())
	if err != nil {
		return fail(fmt.Errorf("seeding members: %w", err))
	}
	if added > 0 {
		log.Info("Seeded members", "count", added)
	}

	secret, err := auth.LoadOrCreateSecret(ctx, repo, cfg.JWTSecret)
	if err != nil {
		return fail(err)
	}
	memberAuth := auth.New(secret, cfg.TokenTTL)

	adminPassword, generated, err := auth.LoadOrCreatePassword(ctx, repo, cfg.AdminPassword)
	if err != nil {
		return fail(err)
	}
	memberAuth.SetVerifier(auth.AdminPassword{Password: adminPassword})

	ledger := services.NewLedger(log, seed.Positions)

	hub := websocket.New(log, ledger, repo, memberAuth)
	hub.Start()
	ledger.SetBroadcaster(hub)

	deps := services.ManagerDeps{
		Logger:        log,
		Ledger:        ledger,
		History:       hist,
		Notifier:      hub,
		Receipts:      repo,
		Pending:       repo,
		CastTimeout:   cfg.CastTimeout,
		Notifications: seed.Notifications,
	}
	if client != nil {
		deps.Ballots = client
		deps.Votes = client
	}
	manager := services.NewSessionManager(deps)

	// Background loops share one context so Close stops both
	bgCtx, cancel := context.WithCancel(context.Background())
	if cfg.CountdownInterval > 0 {
		go hub.StartVotingCountdown(bgCtx, cfg.CountdownInterval)
	}
	if cfg.ReconcileInterval > 0 && client != nil {
		go manager.Reconciler().Start(bgCtx, cfg.ReconcileInterval)
	}

	return &App{
		log:      log,
		cfg:      cfg,
		handlers: handlers.New(manager, repo, memberAuth, hub, log),
		repo:     repo,
		history:  hist,
		manager:  manager,
		hub:      hub,
		cancel:   cancel,

		adminPassword: adminPassword,
		passwordIsNew: generated,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Manager returns the session manager
func (a *App) Manager() *services.SessionManager {
	return a.manager
}

// AdminPassword returns the password admin and superadmin logins require.
// generated is true when it was created on this start.
func (a *App) AdminPassword() (password string, generated bool) {
	return a.adminPassword, a.passwordIsNew
}

// Close performs graceful shutdown of app resources. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if err := a.history.Close(); err != nil {
			a.log.Warn("Failed to close history store", "error", err)
		}
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	})
}

// BaseURL returns the public URL used in receipt QR codes
func (a *App) BaseURL(ctx context.Context) string {
	if u, err := a.repo.GetSetting(ctx, handlers.BaseURLSetting); err == nil && u != "" {
		return u
	}
	return fmt.Sprintf("http://localhost%s", a.cfg.Addr())
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Addr()
	if a.cfg.BaseURL != "" {
		a.setBaseURL(strings.TrimRight(a.cfg.BaseURL, "/"))
	} else {
		// Set default base URL if not configured, using detected LAN IP
		ip := getPreferredIP(realNetworkProvider{})
		a.setDefaultBaseURL(fmt.Sprintf("http://%s%s", ip, addr))
	}

	baseURL := a.BaseURL(ctx)
	a.log.Info("Server starting", "url", baseURL)
	a.log.Info("Results URL", "url", baseURL+"/api/results")

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// setBaseURL stores an explicitly configured base URL
func (a *App) setBaseURL(baseURL string) {
	if err := a.repo.SetSetting(context.Background(), handlers.BaseURLSetting, baseURL); err != nil {
		a.log.Warn("Failed to set base_url", "error", err)
	}
}

// setDefaultBaseURL sets the base URL setting if not already configured
// or if current value uses localhost (which isn't useful for QR codes)
func (a *App) setDefaultBaseURL(baseURL string) {
	ctx := context.Background()
	existing, _ := a.repo.GetSetting(ctx, handlers.BaseURLSetting)

	needsUpdate := existing == "" || strings.Contains(existing, "localhost")
	if needsUpdate {
		if err := a.repo.SetSetting(ctx, handlers.BaseURLSetting, baseURL); err != nil {
			a.log.Warn("Failed to set default base_url", "error", err)
		} else {
			a.log.Info("Default base URL set", "url", baseURL)
		}
	}
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider lists network interfaces
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IPv4 address for members on the branch LAN.
// Private ranges win; localhost is the last resort.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		s := ip.String()
		if strings.HasPrefix(s, "192.168.") || strings.HasPrefix(s, "10.") || isPrivate172(ip) {
			return s
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}

// isPrivate172 checks if IP is in 172.16.0.0/12 range
func isPrivate172(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31
	}
	return false
}
