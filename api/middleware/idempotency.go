package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/threadline-backend/api/responses"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/threadline-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	pendingTTL             = 2 * time.Minute
	pendingMarker          = "pending"
	replayHeader           = "Idempotent-Replayed"
)

type idempotencyRule struct {
	ttl      time.Duration
	optional bool
}

// Keyed by method and chi route pattern, so path parameters stay unexpanded.
var idempotencyRules = map[string]idempotencyRule{
	"POST /api/v1/checkout":                           {ttl: criticalIdempotencyTTL},
	"POST /api/v1/orders/{orderId}/payment-link":      {ttl: defaultIdempotencyTTL},
	"POST /api/v1/cart/holds":                         {ttl: defaultIdempotencyTTL, optional: true},
	"POST /api/admin/v1/orders/{orderId}/cancel":      {ttl: criticalIdempotencyTTL},
	"POST /api/admin/v1/orders/{orderId}/status":      {ttl: defaultIdempotencyTTL},
	"POST /api/admin/v1/variants/{variantId}/restock": {ttl: defaultIdempotencyTTL},
}

func ruleFor(method, pattern string) (idempotencyRule, bool) {
	rule, ok := idempotencyRules[method+" "+pattern]
	return rule, ok
}

// storedResponse is what a completed request leaves behind under its key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// The key is claimed with a pending marker before the handler runs, so a
// concurrent duplicate is refused rather than executed twice. A 5xx outcome
// releases the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := idempotencyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := ruleFor(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if clientKey == "" {
				if rule.optional {
					next.ServeHTTP(w, r)
					return
				}
				g.fail(r.Context(), w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			g.serve(w, r, next, rule, clientKey)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func (g idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, rule idempotencyRule, clientKey string) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprintOf(body)
	key := g.store.IdempotencyKey(callerScope(r), clientKey)

	claimed, err := g.store.SetNX(ctx, key, pendingMarker, pendingTTL)
	if err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		g.replay(ctx, w, key, fingerprint)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	g.settle(context.WithoutCancel(ctx), key, rule.ttl, fingerprint, capture)
}

// settle stores the finished response, or frees the key after a server error.
func (g idempotencyGuard) settle(ctx context.Context, key string, ttl time.Duration, fingerprint string, capture *responseCapture) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		g.logErr(ctx, "release idempotency key", g.store.Del(ctx, key))
		return
	}
	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		Fingerprint: fingerprint,
	})
	if err != nil {
		g.logErr(ctx, "encode idempotency record", err)
		return
	}
	g.logErr(ctx, "persist idempotency record", g.store.Set(ctx, key, string(payload), ttl))
}

func (g idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) {
	raw, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// Freed by a failed attempt between SetNX and Get.
		g.fail(ctx, w, pkgerrors.ConcurrencyConflict(nil))
		return
	case err != nil:
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	case raw == pendingMarker:
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still running"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		g.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.Fingerprint != fingerprint {
		g.fail(ctx, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func (g idempotencyGuard) fail(ctx context.Context, w http.ResponseWriter, err error) {
	responses.WriteError(ctx, g.logg, w, err)
}

func (g idempotencyGuard) logErr(ctx context.Context, msg string, err error) {
	if g.logg != nil && err != nil {
		g.logg.Error(ctx, msg, err)
	}
}

// callerScope keeps keys from different users, methods and paths apart.
func callerScope(r *http.Request) string {
	caller := "anonymous"
	if userID, ok := UserIDFromContext(r.Context()); ok {
		caller = userID.String()
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// responseCapture tees the handler's output so it can be stored.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
