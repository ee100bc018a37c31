package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/api/responses"
	"github.com/angelmondragon/returns-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
)

const (
	actorRoleHeader = "X-Actor-Role"
	actorIDHeader   = "X-Actor-Id"
)

type contextKey string

const (
	ctxActorRole contextKey = "actor_role"
	ctxActorID   contextKey = "actor_id"
)

// Actor resolves the acting identity from the gateway headers. Role
// resolution itself lives upstream; this service only trusts and parses the
// forwarded identity.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleRaw := strings.TrimSpace(r.Header.Get(actorRoleHeader))
			if roleRaw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role header missing"))
				return
			}
			role, err := enums.ParseActorRole(roleRaw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown actor role"))
				return
			}

			idRaw := strings.TrimSpace(r.Header.Get(actorIDHeader))
			actorID, err := uuid.Parse(idRaw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id header missing or invalid"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxActorRole, role)
			ctx = context.WithValue(ctx, ctxActorID, actorID)
			if logg != nil {
				ctx = logg.WithActorRole(ctx, role.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorRoleFromContext returns the parsed actor role, when present.
func ActorRoleFromContext(ctx context.Context) (enums.ActorRole, bool) {
	if ctx == nil {
		return "", false
	}
	role, ok := ctx.Value(ctxActorRole).(enums.ActorRole)
	return role, ok
}

// ActorIDFromContext returns the acting user id, when present.
func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxActorID).(uuid.UUID)
	return id, ok
}

// RequireRoles rejects requests whose actor role is not in the allow list.
func RequireRoles(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := ActorRoleFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted"))
		})
	}
}
