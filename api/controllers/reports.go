package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/smartaccess-backend/api/responses"
	"github.com/angelmondragon/smartaccess-backend/internal/reports"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

func ReportSummary(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "reports")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		summary, err := svc.Summary(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// ReportExport downloads the summary, doors and locks as a workbook.
func ReportExport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "reports")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		body, err := svc.Export(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filename := fmt.Sprintf("smartaccess-%s.xlsx", time.Now().UTC().Format("20060102"))
		responses.WriteAttachment(w, reports.ExportContentType, filename, body)
	}
}
