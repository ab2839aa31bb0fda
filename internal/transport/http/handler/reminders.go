package handler

import (
	"encoding/json"
	"net/http"

	"github.com/auction-sentry/internal/application/reminder"
	"github.com/auction-sentry/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// ReminderHandler handles reminder scheduling endpoints.
type ReminderHandler struct {
	svc *reminder.Service
}

func NewReminderHandler(svc *reminder.Service) *ReminderHandler {
	return &ReminderHandler{svc: svc}
}

// SetReminderInput is the request body for scheduling a reminder. The
// offset carries no validate tag: the service owns offset validation, so an
// explicit zero surfaces as InvalidOffset rather than a field error.
type SetReminderInput struct {
	UserID        string `json:"user_id" validate:"required"`
	AssetID       string `json:"asset_id" validate:"required"`
	ChannelID     string `json:"channel_id" validate:"required"`
	OffsetMinutes int    `json:"offset_minutes"`
}

func (h *ReminderHandler) Set(w http.ResponseWriter, r *http.Request) {
	var input SetReminderInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rem, err := h.svc.Set(input.UserID, input.AssetID, input.ChannelID, input.OffsetMinutes)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rem, err := h.svc.Get(chi.URLParam(r, "userID"), chi.URLParam(r, "assetID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *ReminderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(chi.URLParam(r, "userID"), chi.URLParam(r, "assetID")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reminder cancelled"})
}
