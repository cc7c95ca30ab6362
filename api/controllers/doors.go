package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/api/validators"
	"github.com/angelmondragon/smartaccess-backend/internal/doors"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

type bulkStateRequest struct {
	bulkIDs
	State enums.DoorState `json:"state" validate:"required"`
}

type bulkActiveRequest struct {
	bulkIDs
	Active *bool `json:"active" validate:"required"`
}

func ListDoors(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
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
		active, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := doors.ListParams{Active: active, Search: page.Search, Limit: page.Limit, Cursor: page.Cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			state, err := enums.ParseDoorState(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid state").
					WithField("state", "must be open or closed"))
				return
			}
			params.State = &state
		}

		result, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CreateDoor(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body doors.CreateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Create(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetDoor(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpdateDoor(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body doors.UpdateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Update(r.Context(), actor, id, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func DeleteDoor(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// SetDoorState opens or closes one door.
func SetDoorState(svc doors.Service, state enums.DoorState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "door_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithDoorID(r.Context(), id.String()))
		}

		var view *doors.DoorView
		if state == enums.DoorStateOpen {
			view, err = svc.Open(r.Context(), actor, id)
		} else {
			view, err = svc.Close(r.Context(), actor, id)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func BulkDoorState(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body bulkStateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BulkSetState(r.Context(), actor, body.IDs, body.State)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBulkResult(w, r, logg, "doors.set_state", result)
	}
}

func BulkDoorActive(svc doors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "doors")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body bulkActiveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BulkSetActive(r.Context(), actor, body.IDs, *body.Active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBulkResult(w, r, logg, "doors.set_active", result)
	}
}
