package handlers

import (
	"errors"
	"net/http"
	"time"

	repository "hseproject/repositories"
	"hseproject/schema"
	"hseproject/services"
	"hseproject/storage"
	"hseproject/utils"

	"go.uber.org/zap"
)

// Options are shared by every handler.
type Options struct {
	Logger      *zap.Logger
	Timeout     time.Duration
	Development bool
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 10 * time.Second
	}
	return o.Timeout
}

// writeError maps service errors onto status codes. Details of unexpected
// errors are only exposed in development.
func (o Options) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	var terr *schema.TransitionError
	switch {
	case errors.As(err, &verr):
		utils.HandleValidationResponse(w, http.StatusBadRequest, "Validation failed", verr.Errors)
	case errors.As(err, &terr):
		utils.HandleMessageResponse(w, terr.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrUnauthenticated):
		utils.HandleMessageResponse(w, "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, services.ErrForbidden):
		utils.HandleMessageResponse(w, "Access denied. Only the creator or an administrator can delete this", http.StatusForbidden)
	case errors.Is(err, repository.ErrNotFound):
		utils.HandleMessageResponse(w, "Record not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrNotFound):
		utils.HandleMessageResponse(w, "File not found", http.StatusNotFound)
	case errors.Is(err, schema.ErrItemNotFound), errors.Is(err, schema.ErrUnknownAction),
		errors.Is(err, services.ErrUnknownReport), errors.Is(err, services.ErrNoHumanID),
		errors.Is(err, services.ErrNoCounter):
		utils.HandleMessageResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		utils.HandleMessageResponse(w, "A record with the same unique value already exists", http.StatusConflict)
	case errors.Is(err, services.ErrIDExhausted):
		utils.HandleMessageResponse(w, "Failed to generate a unique identifier, please retry", http.StatusConflict)
	case errors.Is(err, services.ErrNotAnImage), errors.Is(err, services.ErrTooManyFiles),
		errors.Is(err, services.ErrNoFiles), errors.Is(err, services.ErrNoAttendees):
		utils.HandleMessageResponse(w, err.Error(), http.StatusBadRequest)
	default:
		o.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		detail := ""
		if o.Development {
			detail = err.Error()
		}
		utils.HandleErrorResponse(w, "Internal server error", detail, http.StatusInternalServerError)
	}
}
