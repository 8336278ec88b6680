package handlers

import (
	"context"
	"net/http"
	"strconv"

	middleware "hseproject/middlewares"
	"hseproject/services"
	"hseproject/utils"
)

// RecordHandler serves the HTTP surface of one record kind.
type RecordHandler struct {
	service *services.RecordService
	opts    Options
}

func NewRecordHandler(service *services.RecordService, opts Options) *RecordHandler {
	return &RecordHandler{service: service, opts: opts}
}

func (h *RecordHandler) Service() *services.RecordService {
	return h.service
}

func (h *RecordHandler) title() string {
	return h.service.Kind().Title
}

// listParams are the paging and sorting parameters common to every list.
type listParams struct {
	Page      int    `json:"page" validate:"min=0"`
	Limit     int    `json:"limit" validate:"min=0,max=100"`
	SortBy    string `json:"sortBy" validate:"omitempty,max=64"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, err := utils.DecodeDocument(w, r)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	doc, err := h.service.Create(ctx, middleware.ActorFromContext(r.Context()), payload)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" created successfully", doc, http.StatusCreated)
}

func (h *RecordHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	payload, err := utils.DecodeDocument(w, r)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	doc, err := h.service.SaveDraft(ctx, middleware.ActorFromContext(r.Context()), payload)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, "Draft saved successfully", doc, http.StatusCreated)
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var params listParams
	for name, dst := range map[string]*int{"page": &params.Page, "limit": &params.Limit} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.HandleValidationResponse(w, http.StatusBadRequest, "Validation failed", map[string]string{name: "number"})
			return
		}
		*dst = n
	}
	params.SortBy = query.Get("sortBy")
	params.SortOrder = query.Get("sortOrder")
	if err := utils.ValidateStruct(w, &params); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	docs, page, err := h.service.List(ctx, services.ListQuery{
		Page:      params.Page,
		Limit:     params.Limit,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
		Params:    query,
	})
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleListResponse(w, docs, page)
}

// Get fetches one record. Kinds with a view counter count the read.
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	doc, err := h.service.ViewRecord(ctx, r.PathValue("id"))
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" retrieved successfully", doc, http.StatusOK)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	patch, err := utils.DecodeDocument(w, r)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	doc, err := h.service.Update(ctx, middleware.ActorFromContext(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" updated successfully", doc, http.StatusOK)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	if err := h.service.Delete(ctx, middleware.ActorFromContext(r.Context()), r.PathValue("id")); err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleMessageResponse(w, h.title()+" deleted successfully", http.StatusOK)
}

// Action runs a named lifecycle action, e.g. POST /{id}/actions/close.
func (h *RecordHandler) Action(w http.ResponseWriter, r *http.Request) {
	payload, err := utils.DecodeDocument(w, r)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	action := r.PathValue("action")
	doc, err := h.service.Perform(ctx, middleware.ActorFromContext(r.Context()), r.PathValue("id"), action, payload)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" updated successfully", doc, http.StatusOK)
}

func (h *RecordHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	doc, err := h.service.Like(ctx, middleware.ActorFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" liked", doc, http.StatusOK)
}

func (h *RecordHandler) GenerateID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	id, err := h.service.GenerateID(ctx)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	field := h.service.Kind().HumanID.Field
	utils.HandleDataResponse(w, "Identifier generated", map[string]string{field: id}, http.StatusOK)
}

func (h *RecordHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	stats, err := h.service.Stats(ctx, r.URL.Query())
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, h.title()+" statistics retrieved successfully", stats, http.StatusOK)
}

// Report serves the named read-only report.
func (h *RecordHandler) Report(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
		defer cancel()

		data, err := h.service.Report(ctx, path, r.URL.Query())
		if err != nil {
			h.opts.writeError(w, r, err)
			return
		}
		utils.HandleDataResponse(w, "", data, http.StatusOK)
	}
}
