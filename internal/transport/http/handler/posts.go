package handler

import (
	"encoding/json"
	"net/http"

	"github.com/auction-sentry/internal/application/ingest"
	"github.com/auction-sentry/internal/pkg/validate"
)

// PostHandler accepts raw channel posts for ingestion.
type PostHandler struct {
	svc *ingest.Service
}

func NewPostHandler(svc *ingest.Service) *PostHandler {
	return &PostHandler{svc: svc}
}

// IngestEnvelope reports the ingestion outcome for one post.
type IngestEnvelope struct {
	Status  string      `json:"status"` // admitted, duplicate, skipped, rejected
	Post    interface{} `json:"post,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (h *PostHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var input ingest.InboundPost
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		httpError(w, err)
		return
	}

	switch {
	case res.Duplicate:
		writeJSON(w, http.StatusOK, IngestEnvelope{Status: "duplicate", Message: "post already admitted"})
	case res.Skipped:
		writeJSON(w, http.StatusOK, IngestEnvelope{Status: "skipped", Message: "no unambiguous asset identifier"})
	case res.Rejected:
		writeJSON(w, http.StatusOK, IngestEnvelope{Status: "rejected", Message: "not judged to be an auction"})
	default:
		writeJSON(w, http.StatusCreated, IngestEnvelope{Status: "admitted", Post: res.Post})
	}
}
