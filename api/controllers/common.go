package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/smartaccess-backend/api/middleware"
	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/api/validators"
	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/bulk"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// requireActor writes a 401 and returns false when no actor was loaded.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return authz.Actor{}, false
	}
	return actor, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}

type pageQuery struct {
	Limit  int
	Cursor string
	Search string
}

func parsePage(r *http.Request) (pageQuery, error) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return pageQuery{}, err
	}
	q := r.URL.Query()
	return pageQuery{
		Limit:  limit,
		Cursor: strings.TrimSpace(q.Get("cursor")),
		Search: validators.SanitizeString(q.Get("search"), 100),
	}, nil
}

// decodeOptionalBody accepts an empty body as the zero value of dest.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

type bulkIDs struct {
	IDs []uuid.UUID `json:"ids"`
}

// writeBulkResult answers 200 with the per-record outcome. Partial failures
// are not an error for the caller, so they are logged here instead.
func writeBulkResult(w http.ResponseWriter, r *http.Request, logg *logger.Logger, operation string, result bulk.Result) {
	if err := result.Err(); err != nil && logg != nil {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"operation": operation,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		})
		logg.Warn(logg.WithField(ctx, "failures", err.Error()), "bulk.partial_failure")
	}
	responses.WriteSuccess(w, result)
}
