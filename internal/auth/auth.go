package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kmpdu/evote/internal/errors"
	"github.com/kmpdu/evote/internal/models"
)

const (
	CookieName      = "kmpdu_session"
	DefaultTokenTTL = 12 * time.Hour
	Issuer          = "kmpdu-evote"

	// SecretSettingKey is where a generated signing secret is persisted
	SecretSettingKey = "jwt_secret"

	// AdminPasswordSettingKey is where a generated admin password is persisted
	AdminPasswordSettingKey = "admin_password"
)

var (
	ErrMissingToken = errors.Unauthenticated("User not authenticated")
	ErrInvalidToken = errors.Unauthenticated("invalid or expired session token")
	ErrRevoked      = errors.Unauthenticated("session has been logged out")
	ErrForbidden    = errors.Forbidden("insufficient role for this action")

	ErrBadCredentials = errors.Unauthenticated("invalid member id or password")
)

var passwordWords = []string{
	"stethoscope", "clinic", "ward", "theatre", "pharmacy",
	"dental", "triage", "scalpel", "suture", "pulse",
	"union", "branch", "ballot", "nairobi", "mombasa",
	"kisumu", "nakuru", "eldoret", "harambee", "uhuru",
}

// Claims are the member claims carried in a session token
type Claims struct {
	jwt.RegisteredClaims
	UserID   string      `json:"uid"`
	MemberID string      `json:"member_id"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	Branch   string      `json:"branch"`
}

// User rebuilds the session user from the claims
func (c *Claims) User() *models.User {
	return &models.User{
		ID:       c.UserID,
		MemberID: c.MemberID,
		Name:     c.Name,
		Role:     models.ParseRole(string(c.Role)),
		Branch:   c.Branch,
	}
}

// Auth issues and verifies HMAC-signed member session tokens
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	verifier Verifier

	revoked map[string]time.Time // jti -> token expiry
	mu      sync.RWMutex
}

// New creates a new Auth instance signing with secret
func New(secret []byte, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Auth{
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// SetClock overrides the time source used for issuing and validating tokens
func (a *Auth) SetClock(now func() time.Time) {
	a.now = now
}

// TTL returns the lifetime of issued tokens
func (a *Auth) TTL() time.Duration {
	return a.ttl
}

// GenerateSecret creates a random 32-byte signing secret, hex encoded
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SettingsStore reads and writes persisted settings
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// LoadOrCreateSecret returns configured if set. Otherwise it reuses the
// secret stored in settings, generating and storing one on first start so
// tokens survive restarts.
func LoadOrCreateSecret(ctx context.Context, store SettingsStore, configured string) ([]byte, error) {
	s, _, err := loadOrCreate(ctx, store, SecretSettingKey, configured, GenerateSecret)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// GeneratePassword creates a four-word admin password
func GeneratePassword() (string, error) {
	words := make([]string, 4)
	for i := range words {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordWords))))
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		words[i] = passwordWords[n.Int64()]
	}
	return strings.Join(words, "-"), nil
}

// LoadOrCreatePassword resolves the admin password the same way as the
// signing secret. generated reports whether a new one was just stored, so
// the caller can print it once.
func LoadOrCreatePassword(ctx context.Context, store SettingsStore, configured string) (password string, generated bool, err error) {
	return loadOrCreate(ctx, store, AdminPasswordSettingKey, configured, GeneratePassword)
}

func loadOrCreate(ctx context.Context, store SettingsStore, key, configured string, generate func() (string, error)) (string, bool, error) {
	if configured != "" {
		return configured, false, nil
	}
	if store == nil {
		s, err := generate()
		return s, err == nil, err
	}

	if s, err := store.GetSetting(ctx, key); err == nil && s != "" {
		return s, false, nil
	}

	s, err := generate()
	if err != nil {
		return "", false, err
	}
	if err := store.SetSetting(ctx, key, s); err != nil {
		return "", false, fmt.Errorf("storing %s: %w", key, err)
	}
	return s, true, nil
}

// Verifier checks the credential presented with a member id at login
type Verifier interface {
	Verify(ctx context.Context, u models.User, credential string) error
}

// AdminPassword requires the shared admin password for admin and
// superadmin logins. Members are checked by Members; when it is nil a
// member id alone is accepted.
type AdminPassword struct {
	Password string
	Members  Verifier
}

// Verify implements Verifier
func (v AdminPassword) Verify(ctx context.Context, u models.User, credential string) error {
	if u.Role.IsAdmin() {
		if v.Password == "" || subtle.ConstantTimeCompare([]byte(credential), []byte(v.Password)) != 1 {
			return ErrBadCredentials
		}
		return nil
	}
	if v.Members != nil {
		return v.Members.Verify(ctx, u, credential)
	}
	return nil
}

// SetVerifier sets the login credential check
func (a *Auth) SetVerifier(v Verifier) {
	a.verifier = v
}

// Verify checks a login credential. Without a verifier, admin roles are
// always refused.
func (a *Auth) Verify(ctx context.Context, u models.User, credential string) error {
	if a.verifier == nil {
		return AdminPassword{}.Verify(ctx, u, credential)
	}
	return a.verifier.Verify(ctx, u, credential)
}

// Login issues a session token for the user and returns it with its expiry
func (a *Auth) Login(u models.User) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   u.Key(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   u.ID,
		MemberID: u.MemberID,
		Name:     u.Name,
		Role:     u.Role,
		Branch:   u.Branch,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, errors.Internal(err)
	}
	return token, exp, nil
}

// Parse validates a token and returns its claims
func (a *Auth) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(err, errors.ErrUnauthenticated, "session token has expired")
		}
		return nil, errors.Wrap(err, errors.ErrUnauthenticated, ErrInvalidToken.Message)
	}
	if claims.MemberID == "" && claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if a.isRevoked(claims.ID) {
		return nil, ErrRevoked
	}
	return &claims, nil
}

// Logout revokes a token until it would have expired anyway
func (a *Auth) Logout(token string) {
	claims, err := a.Parse(token)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.revoked[claims.ID] = claims.ExpiresAt.Time
	a.pruneLocked()
	a.mu.Unlock()
}

func (a *Auth) isRevoked(id string) bool {
	a.mu.RLock()
	_, ok := a.revoked[id]
	a.mu.RUnlock()
	return ok
}

// pruneLocked drops revocations for tokens that have expired
func (a *Auth) pruneLocked() {
	now := a.now()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
}

// TokenFromRequest extracts a session token from the Authorization header,
// the session cookie, or the token query parameter (for websocket upgrades)
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

type ctxKey struct{}

// WithUser stores the authenticated user in ctx
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.User)
	return u, ok && u != nil
}

// UserFromRequest validates the request's token and returns its user
func (a *Auth) UserFromRequest(r *http.Request) (*models.User, error) {
	claims, err := a.Parse(TokenFromRequest(r))
	if err != nil {
		return nil, err
	}
	return claims.User(), nil
}

// RequireAuthAPI middleware for API endpoints (returns 401)
func (a *Auth) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.UserFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized - please log in")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireRole middleware rejects users whose role is not listed (returns 403).
// It must run after RequireAuthAPI.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized - please log in")
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Message)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"error":%q}`, code, msg)
}

// SetSessionCookie sets the session cookie on the response
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
