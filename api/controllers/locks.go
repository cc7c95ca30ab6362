package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/api/validators"
	"github.com/angelmondragon/smartaccess-backend/internal/locks"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

type lockNoteRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type bulkLockRequest struct {
	bulkIDs
	Notes string `json:"notes" validate:"max=500"`
}

func ListLocks(svc locks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "locks")
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
		engaged, err := validators.ParseQueryBool(r, "engaged")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), actor, locks.ListParams{Engaged: engaged, Limit: page.Limit, Cursor: page.Cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetLock(svc locks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "locks")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		doorID, err := validators.ParseUUID(chi.URLParam(r, "doorId"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), actor, doorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SetLock engages or disengages the override on one door. The body is
// optional and carries a note.
func SetLock(svc locks.Service, engaged bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "locks")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		doorID, err := validators.ParseUUID(chi.URLParam(r, "doorId"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body lockNoteRequest
		if err := decodeOptionalBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithDoorID(r.Context(), doorID.String()))
		}

		var view *locks.LockView
		if engaged {
			view, err = svc.Engage(r.Context(), actor, doorID, body.Notes)
		} else {
			view, err = svc.Disengage(r.Context(), actor, doorID, body.Notes)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func BulkSetLock(svc locks.Service, engaged bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "locks")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body bulkLockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		run := svc.BulkDisengage
		if engaged {
			run = svc.BulkEngage
		}
		operation := "locks.disengage"
		if engaged {
			operation = "locks.engage"
		}
		result, err := run(r.Context(), actor, body.IDs, body.Notes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBulkResult(w, r, logg, operation, result)
	}
}
