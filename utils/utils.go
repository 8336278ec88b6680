package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"hseproject/models"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

func init() {
	Validate = validator.New()
	// report fields under their JSON names
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// DecodeAndValidate decodes the request body into a structure and validates it
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		HandleMessageResponse(w, err.Error(), http.StatusBadRequest)
		return err
	}
	return ValidateStruct(w, v)
}

// ValidateStruct validates v and writes the field→tag map on failure.
func ValidateStruct(w http.ResponseWriter, v interface{}) error {
	if err := Validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			HandleMessageResponse(w, err.Error(), http.StatusBadRequest)
			return err
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = e.Tag()
		}
		HandleValidationResponse(w, http.StatusBadRequest, "Validation failed", errorMessages)
		return err
	}
	return nil
}

// DecodeDocument reads a JSON object body. Numbers stay json.Number so
// integers survive untouched. An empty body decodes to an empty document.
func DecodeDocument(w http.ResponseWriter, r *http.Request) (models.Document, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	doc := models.Document{}
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Document{}, nil
		}
		HandleMessageResponse(w, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return nil, err
	}
	if doc == nil {
		doc = models.Document{}
	}
	return doc, nil
}

// HandleMessageResponse writes a message-only response
func HandleMessageResponse(w http.ResponseWriter, errorMessage string, statusCode int) {
	writeJSON(w, statusCode, models.NewMessageResponse(statusCode, errorMessage))
}

// HandleErrorResponse writes a message plus the underlying error detail
func HandleErrorResponse(w http.ResponseWriter, message, detail string, statusCode int) {
	response := models.NewMessageResponse(statusCode, message)
	response.Error = detail
	writeJSON(w, statusCode, response)
}

// HandleValidationResponse handles validation errors response
func HandleValidationResponse(w http.ResponseWriter, statusCode int, message string, validationErrors interface{}) {
	writeJSON(w, statusCode, models.NewValidationResponse(statusCode, message, validationErrors))
}

// HandleDataResponse handles success responses with data
func HandleDataResponse(w http.ResponseWriter, message string, data interface{}, statusCode int) {
	writeJSON(w, statusCode, models.NewDataResponse(statusCode, message, data))
}

// HandleListResponse writes one page of a list
func HandleListResponse(w http.ResponseWriter, data interface{}, pagination models.Pagination) {
	writeJSON(w, http.StatusOK, models.NewListResponse(http.StatusOK, data, pagination))
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
