package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderUserID carries the owner of every /api request.
const HeaderUserID = "X-User-ID"

type contextKey string

const ownerKey contextKey = "owner"

var ErrNoOwner = errors.New("owner not found")

// WithOwner stores the request owner in ctx.
func WithOwner(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the owner stored by WithOwner, or ErrNoOwner.
func OwnerFromContext(ctx context.Context) (uuid.UUID, error) {
	owner, ok := ctx.Value(ownerKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoOwner
	}
	return owner, nil
}

func parseOwner(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return uuid.Nil, ErrNoOwner
	}
	owner, err := uuid.Parse(raw)
	if err != nil || owner == uuid.Nil {
		return uuid.Nil, ErrNoOwner
	}
	return owner, nil
}

// ownedHandler is a handler that runs for an identified owner.
type ownedHandler func(w http.ResponseWriter, r *http.Request, owner uuid.UUID)

// owned resolves the owner from the X-User-ID header and rejects anonymous
// requests with 401. Every mutating request drops the owner's cached
// dashboard snapshot, failed ones included: a failure can follow a write
// that was already stored.
func (s *Server) owned(h ownedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := parseOwner(r)
		if err != nil {
			ErrorResponse(http.StatusUnauthorized, "missing or invalid "+HeaderUserID+" header").Write(w)
			return
		}
		r = r.WithContext(WithOwner(r.Context(), owner))

		h(w, r, owner)

		if r.Method != http.MethodGet && r.Method != http.MethodHead && s.analytics != nil {
			s.analytics.Invalidate(owner)
		}
	}
}
