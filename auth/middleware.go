package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

type contextKey string

const sessionContextKey contextKey = "session"

// CountryHeader carries the caller's country code, set by the edge proxy.
const CountryHeader = "CF-IPCountry"

// SessionFromContext returns the session attached by the middleware.
func SessionFromContext(ctx context.Context) (*interfaces.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*interfaces.Session)
	return s, ok
}

func WithSession(ctx context.Context, s *interfaces.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

type SessionStore interface {
	interfaces.SessionStore
	interfaces.ProfileStore
}

// Middleware authenticates the bearer token and attaches the Session for
// its sid, creating the session and the user profile on first use.
type Middleware struct {
	provider interfaces.IdentityProvider
	store    SessionStore
	clock    clock.Clock
	log      *slog.Logger
}

func NewMiddleware(provider interfaces.IdentityProvider, store SessionStore, clk clock.Clock, log *slog.Logger) *Middleware {
	return &Middleware{
		provider: provider,
		store:    store,
		clock:    clk,
		log:      log.With(slog.String("component", "auth")),
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// clientIP expects RemoteAddr to have been rewritten by middleware.RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}
		identity, err := m.provider.Authenticate(r.Context(), token)
		if err != nil {
			m.log.Debug("Rejected bearer token", "err", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		session, err := m.loadSession(r, identity)
		if errors.Is(err, interfaces.ErrUnauthenticated) {
			m.log.Warn("Session does not belong to token subject",
				slog.String("sessionID", identity.SessionID),
				slog.String("userID", identity.UserID))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			m.log.Error("Failed to load session", slog.String("sessionID", identity.SessionID), "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func (m *Middleware) loadSession(r *http.Request, identity *interfaces.Identity) (*interfaces.Session, error) {
	ctx := r.Context()
	now := m.clock.Now().UTC().Truncate(time.Millisecond)
	ip := clientIP(r)
	userAgent := r.UserAgent()
	country := r.Header.Get(CountryHeader)

	session, err := m.store.GetSession(ctx, identity.SessionID)
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		session = &interfaces.Session{
			ID:          identity.SessionID,
			UserID:      identity.UserID,
			AuthUserID:  identity.UserID,
			DeviceNonce: identity.DeviceNonce,
			IP:          ip,
			CountryCode: country,
			UserAgent:   userAgent,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.store.CreateSession(ctx, session); err != nil {
			return nil, err
		}
		if err := m.ensureProfile(ctx, identity, now); err != nil {
			return nil, err
		}
		return session, nil
	case err != nil:
		return nil, err
	}

	if session.AuthUserID != identity.UserID || session.DeviceNonce != identity.DeviceNonce {
		return nil, interfaces.ErrUnauthenticated
	}

	if session.IP != ip || session.UserAgent != userAgent || session.CountryCode != country {
		session.IP = ip
		session.UserAgent = userAgent
		session.CountryCode = country
		session.UpdatedAt = now
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (m *Middleware) ensureProfile(ctx context.Context, identity *interfaces.Identity, now time.Time) error {
	_, err := m.store.GetProfile(ctx, identity.UserID)
	if !errors.Is(err, interfaces.ErrProfileNotFound) {
		return err
	}
	return m.store.SaveProfile(ctx, &interfaces.UserProfile{
		UserID:    identity.UserID,
		Name:      identity.Name,
		Email:     identity.Email,
		Picture:   identity.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
