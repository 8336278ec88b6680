package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"hseproject/services"
	"hseproject/utils"
)

const maxCSVBytes = 5 << 20

type AttendeeHandler struct {
	opts Options
}

func NewAttendeeHandler(opts Options) *AttendeeHandler {
	return &AttendeeHandler{opts: opts}
}

// Import parses the uploaded "csv" file into an attendee list.
func (h *AttendeeHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBytes+1<<20)
	if err := r.ParseMultipartForm(maxCSVBytes); err != nil {
		utils.HandleMessageResponse(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("csv")
	if err != nil {
		utils.HandleMessageResponse(w, "No CSV file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") &&
		!strings.Contains(header.Header.Get("Content-Type"), "csv") {
		utils.HandleMessageResponse(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	res, err := services.ImportAttendees(file)
	if errors.Is(err, services.ErrNoAttendees) {
		// row errors explain why nothing was imported
		utils.HandleValidationResponse(w, http.StatusBadRequest, err.Error(), rowErrors(res))
		return
	}
	if err != nil {
		utils.HandleMessageResponse(w, "Error processing CSV file: "+err.Error(), http.StatusBadRequest)
		return
	}
	utils.HandleDataResponse(w, "Attendees imported successfully", res, http.StatusOK)
}

func rowErrors(res *services.ImportResult) []services.RowError {
	if res == nil || res.Errors == nil {
		return []services.RowError{}
	}
	return res.Errors
}

type attendeeBatch struct {
	Attendees []services.Attendee `json:"attendees" validate:"required,min=1"`
}

// Validate checks a JSON attendee batch without storing anything.
func (h *AttendeeHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var batch attendeeBatch
	if err := utils.DecodeAndValidate(w, r, &batch); err != nil {
		return
	}
	utils.HandleDataResponse(w, "Attendees validated", services.ValidateAttendees(batch.Attendees), http.StatusOK)
}

// Template serves a sample import file.
func (h *AttendeeHandler) Template(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\"attendees_template.csv\"")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(services.AttendeeTemplate))
}
