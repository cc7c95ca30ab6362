package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/api/validators"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

type createProfileRequest struct {
	IdentityID int64      `json:"identity_id" validate:"required,gt=0"`
	Role       enums.Role `json:"role"`
	AccessCode string     `json:"access_code"`
	Phone      *string    `json:"phone,omitempty"`
	Active     *bool      `json:"active,omitempty"`
}

type updateProfileRequest struct {
	Role       *enums.Role `json:"role,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Active     *bool       `json:"active,omitempty"`
	AccessCode *string     `json:"access_code,omitempty"`
}

type accessCodeRequest struct {
	AccessCode string `json:"access_code" validate:"required"`
}

func ListProfiles(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
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
		params := profiles.ListParams{Active: active, Search: page.Search, Limit: page.Limit, Cursor: page.Cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			role, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
					WithField("role", "is not a known role"))
				return
			}
			params.Role = &role
		}

		result, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CreateProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var body createProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Create(r.Context(), actor, profiles.CreateInput{
			IdentityID: body.IdentityID,
			Role:       body.Role,
			AccessCode: body.AccessCode,
			Phone:      body.Phone,
			Active:     body.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "profile_id")
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

// LookupProfile resolves an access code to its profile.
func LookupProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.LookupAccessCode(r.Context(), actor, r.URL.Query().Get("access_code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpdateProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "profile_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Update(r.Context(), actor, id, profiles.UpdateInput{
			Role:       body.Role,
			Phone:      body.Phone,
			Active:     body.Active,
			AccessCode: body.AccessCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpdateAccessCode(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "profile_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body accessCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateAccessCode(r.Context(), actor, id, body.AccessCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func ProfileCapabilities(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUID(chi.URLParam(r, "id"), "profile_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caps, err := svc.Capabilities(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, caps)
	}
}
