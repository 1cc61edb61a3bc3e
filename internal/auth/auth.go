package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"carebear/pkg/models"
)

// HeaderName carries the shared verification token on dashboard requests.
const HeaderName = "slack-verification-token"

// ErrUnauthorized is returned when a presented token does not match.
var ErrUnauthorized = errors.New("invalid verification token")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth checks requests against the chat platform's shared verification
// token. Interaction callbacks carry it inside their payload; dashboard
// requests carry it in HeaderName.
type Auth struct {
	token  []byte
	logger Logger
}

// New creates an Auth for token. An empty token rejects everything.
func New(token string, logger Logger) *Auth {
	return &Auth{token: []byte(token), logger: logger}
}

// Verify reports whether presented matches the configured token.
func (a *Auth) Verify(presented string) error {
	if len(a.token) == 0 || subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// RequireToken is middleware that rejects requests whose HeaderName does
// not match the configured token with a 401 problem details body.
func (a *Auth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Verify(r.Header.Get(HeaderName)); err != nil {
			if a.logger != nil {
				a.logger.Warn("Rejected request", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
			}
			writeProblem(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		problem.TraceID = sc.TraceID().String()
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
