package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	pkgAuth "github.com/angelmondragon/smartaccess-backend/pkg/auth"
	"github.com/angelmondragon/smartaccess-backend/pkg/auth/session"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

// ActorLoader re-reads the identity and profile behind a token so role and
// activity changes take effect on the next request.
type ActorLoader interface {
	LoadActor(ctx context.Context, identityID int64) (authz.Actor, error)
}

// Auth validates a bearer token, checks that its session is live and seeds
// the request context with the caller's actor.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, actors ActorLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actors == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			actor, err := actors.LoadActor(r.Context(), claims.IdentityID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					err = pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "identity unavailable")
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !actor.IdentityActive {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity inactive"))
				return
			}

			ctx := WithActor(r.Context(), actor)
			ctx = withAccessID(ctx, claims.ID)

			if logg != nil {
				ctx = logg.WithIdentityID(ctx, actor.IdentityID)
				ctx = logg.WithActorRole(ctx, actor.RoleLabel())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
