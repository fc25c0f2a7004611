// Package auth resolves the calling actor from a bearer token. Credential
// issuance lives in the external identity system; this package only verifies
// tokens it minted and extracts the actor reference.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
)

var ErrUnauthenticated = errors.New("authentication required")

type ctxKey string

const ctxKeyActor ctxKey = "engage.actor"

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (models.ActorRef, bool) {
	actor, ok := ctx.Value(ctxKeyActor).(models.ActorRef)
	return actor, ok
}

// Verifier validates HS256 bearer tokens carrying `sub` (actor id) and
// `kind` (requester|provider) claims.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth secret required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) parse(tokenStr string) (models.ActorRef, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return models.ActorRef{}, fmt.Errorf("token parse: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.ActorRef{}, errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.ActorRef{}, errors.New("missing sub claim")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return models.ActorRef{}, fmt.Errorf("invalid sub claim: %w", err)
	}
	kind, _ := claims["kind"].(string)
	actorKind := models.ActorKind(kind)
	if !actorKind.Valid() {
		return models.ActorRef{}, errors.New("missing or invalid kind claim")
	}
	return models.ActorRef{Kind: actorKind, ID: id}, nil
}

// Middleware rejects requests without a valid bearer token and places the
// actor reference into the request context for handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			http.Error(w, "bearer token required", http.StatusUnauthorized)
			return
		}
		actor, err := v.parse(strings.TrimSpace(authz[7:]))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewToken mints a token for an actor. Used by tests and local tooling; real
// deployments receive tokens from the identity system sharing the secret.
func NewToken(secret string, actor models.ActorRef, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  actor.ID.String(),
		"kind": string(actor.Kind),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
