package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/auction-sentry/internal/application/bid"
	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/domain"
	"github.com/auction-sentry/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// PostArchive is the archived-post read model consulted when the registry
// no longer holds an auction (evicted or from before a restart).
type PostArchive interface {
	ListByAsset(ctx context.Context, assetID string) ([]domain.AuctionPost, error)
}

// BidArchive is the archived-bid read model, consulted the same way.
type BidArchive interface {
	ListByAsset(ctx context.Context, assetID string) ([]domain.Bid, error)
}

// AuctionHandler handles auction lookup and bid endpoints. The archives are
// optional fallbacks; nil disables them.
type AuctionHandler struct {
	registry    *registry.Registry
	bids        *bid.Service
	postArchive PostArchive
	bidArchive  BidArchive
}

func NewAuctionHandler(reg *registry.Registry, bids *bid.Service, posts PostArchive, bidsArchive BidArchive) *AuctionHandler {
	return &AuctionHandler{registry: reg, bids: bids, postArchive: posts, bidArchive: bidsArchive}
}

func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	post, err := h.registry.Lookup(assetID)
	if errors.Is(err, domain.ErrNotFound) && h.postArchive != nil {
		if archived, aerr := h.postArchive.ListByAsset(r.Context(), assetID); aerr == nil && len(archived) > 0 {
			// Archived posts come back oldest first; serve the most recent.
			writeJSON(w, http.StatusOK, archived[len(archived)-1])
			return
		}
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// PlaceBidInput is the request body for confirming a bid.
type PlaceBidInput struct {
	UserID string `json:"user_id" validate:"required"`
	Amount int64  `json:"amount" validate:"required"`
}

func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var input PlaceBidInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.bids.Confirm(r.Context(), chi.URLParam(r, "assetID"), input.UserID, input.Amount)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	bids, err := h.bids.List(assetID)
	if errors.Is(err, domain.ErrNotFound) && h.bidArchive != nil {
		if archived, aerr := h.bidArchive.ListByAsset(r.Context(), assetID); aerr == nil && len(archived) > 0 {
			sort.SliceStable(archived, func(i, j int) bool {
				if archived[i].Amount != archived[j].Amount {
					return archived[i].Amount > archived[j].Amount
				}
				return archived[i].PlacedAt.Before(archived[j].PlacedAt)
			})
			writeJSON(w, http.StatusOK, archived)
			return
		}
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *AuctionHandler) BestBid(w http.ResponseWriter, r *http.Request) {
	b, err := h.bids.Best(chi.URLParam(r, "assetID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *AuctionHandler) FinalBid(w http.ResponseWriter, r *http.Request) {
	b, err := h.bids.Final(chi.URLParam(r, "assetID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// WatchInput is the request body for subscribing to outbid notifications.
type WatchInput struct {
	UserID    string `json:"user_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
}

func (h *AuctionHandler) Watch(w http.ResponseWriter, r *http.Request) {
	var input WatchInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bids.Watch(chi.URLParam(r, "assetID"), input.UserID, input.ChannelID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "watching"})
}
