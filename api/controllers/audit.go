package controllers

import (
	"net/http"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/api/validators"
	"github.com/angelmondragon/smartaccess-backend/internal/audit"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

func ListAuditEvents(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "audit")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := validators.ParseQueryInt64(r, "actor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(r.Context(), actor, audit.ListParams{
			EventType:     q.Get("event_type"),
			AggregateType: q.Get("aggregate_type"),
			AggregateID:   q.Get("aggregate_id"),
			ActorID:       actorID,
			Limit:         page.Limit,
			Cursor:        page.Cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
