package routes

import (
	"net/http"

	"hseproject/handlers"
	"hseproject/kinds"
	"hseproject/middlewares"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the route table serves.
type Handlers struct {
	Records   []RecordRoute
	Uploads   *handlers.UploadHandler
	Attendees *handlers.AttendeeHandler
	Health    *handlers.HealthHandler
	// ServeBlobs exposes stored files under /api/upload/files when the blob
	// store has no public URL of its own.
	ServeBlobs bool
}

// RecordRoute mounts a record handler at its base path.
type RecordRoute struct {
	Path    string
	Handler *handlers.RecordHandler
}

// RecordRoutes builds one handler per registered kind.
func RecordRoutes(routes []kinds.Route, build func(r kinds.Route) *handlers.RecordHandler) []RecordRoute {
	out := make([]RecordRoute, 0, len(routes))
	for _, r := range routes {
		out = append(out, RecordRoute{Path: r.Path, Handler: build(r)})
	}
	return out
}

func SetupRoutes(h Handlers, jwtSecret, jwtIssuer string) *http.ServeMux {
	mux := http.NewServeMux()

	// Apply JWT middleware to all API routes except health
	jwtMiddleware := middlewares.JWTMiddleware(jwtSecret, jwtIssuer)
	protect := func(f http.HandlerFunc) http.Handler {
		return jwtMiddleware(f)
	}

	mux.HandleFunc("GET /api/health", h.Health.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	for _, rr := range h.Records {
		SetupRecordRoutes(mux, rr.Path, rr.Handler, protect)
	}

	// Upload routes
	if h.Uploads != nil {
		mux.Handle("POST /api/upload/image", protect(h.Uploads.UploadImage))
		mux.Handle("POST /api/upload/images", protect(h.Uploads.UploadImages))
		mux.Handle("POST /api/upload/signature", protect(h.Uploads.UploadSignature))
		mux.Handle("DELETE /api/upload/{key...}", protect(h.Uploads.Delete))
		if h.ServeBlobs {
			mux.HandleFunc("GET /api/upload/files/{key...}", h.Uploads.Serve)
		}
	}

	// CSV attendee import
	mux.Handle("POST /api/csv-upload/attendees", protect(h.Attendees.Import))
	mux.Handle("POST /api/csv-upload/validate-attendees", protect(h.Attendees.Validate))
	mux.Handle("GET /api/csv-upload/template", protect(h.Attendees.Template))

	return mux
}

// SetupRecordRoutes mounts the record surface of one kind under base.
func SetupRecordRoutes(mux *http.ServeMux, base string, h *handlers.RecordHandler, protect func(http.HandlerFunc) http.Handler) {
	svc := h.Service()
	kind := svc.Kind()

	mux.Handle("POST "+base, protect(h.Create))
	mux.Handle("GET "+base, protect(h.List))
	mux.Handle("GET "+base+"/{id}", protect(h.Get))
	mux.Handle("PUT "+base+"/{id}", protect(h.Update))
	mux.Handle("DELETE "+base+"/{id}", protect(h.Delete))
	mux.Handle("POST "+base+"/{id}/actions/{action}", protect(h.Action))
	mux.Handle("GET "+base+"/stats/overview", protect(h.Stats))

	if kind.Lifecycle.HasDraft() {
		mux.Handle("POST "+base+"/save-draft", protect(h.SaveDraft))
	}
	if kind.HumanID != nil {
		mux.Handle("POST "+base+"/generate-id", protect(h.GenerateID))
	}
	if svc.HasCounter("likes") {
		mux.Handle("PUT "+base+"/{id}/like", protect(h.Like))
	}
	// Reporting routes
	for _, report := range kind.Reports {
		mux.Handle("GET "+base+"/"+report.Path, protect(h.Report(report.Path)))
	}
}
