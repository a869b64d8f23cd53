package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hammerstone/live-auction-backend/internal/domain/auction"
	"github.com/hammerstone/live-auction-backend/internal/domain/bid"
	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/service/lifecycle"
)

type auctionView struct {
	*auction.Auction
	Status        string `json:"status"`
	TimeRemaining int64  `json:"time_remaining"`
}

type auctionDetailView struct {
	auctionView
	TopBid         *bid.Bid `json:"top_bid,omitempty"`
	TotalBids      int      `json:"total_bids"`
	MinimumNextBid string   `json:"minimum_next_bid"`
}

func newAuctionView(a *auction.Auction) auctionView {
	return auctionView{
		Auction:       a,
		Status:        a.Status.String(),
		TimeRemaining: int64(a.TimeRemaining(time.Now()).Seconds()),
	}
}

func auctionViews(auctions []*auction.Auction) []auctionView {
	out := make([]auctionView, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, newAuctionView(a))
	}
	return out
}

func (h *Handlers) listAuctions(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	auctions, total, err := h.lifecycle.ListActive(r.Context(), nil, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, Page{
		Items: auctionViews(auctions), Page: page, PageSize: pageSize, Total: total,
	})
}

func (h *Handlers) listAuctionsByCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, pageSize := pagination(r)
	auctions, total, err := h.lifecycle.ListActive(r.Context(), &categoryID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, Page{
		Items: auctionViews(auctions), Page: page, PageSize: pageSize, Total: total,
	})
}

func (h *Handlers) getAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail, err := h.lifecycle.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, auctionDetailView{
		auctionView:    newAuctionView(detail.Auction),
		TopBid:         detail.TopBid,
		TotalBids:      detail.TotalBids,
		MinimumNextBid: detail.MinimumNextBid.String(),
	})
}

func (h *Handlers) createAuction(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var req createAuctionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, r, errors.NewValidationError("INVALID_CATEGORY", "category_id is not a valid id"))
		return
	}
	startPrice, err := parseMoney("starting_price", req.StartPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	minIncrement, err := parseMoney("min_increment", req.MinIncrement)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var reserve *values.Money
	if req.ReservePrice != "" {
		m, err := parseMoney("reserve_price", req.ReservePrice)
		if err != nil {
			writeError(w, r, err)
			return
		}
		reserve = &m
	}

	a, err := h.lifecycle.CreateAuction(r.Context(), lifecycle.CreateAuctionRequest{
		SellerID:     claims.UserID,
		CategoryID:   categoryID,
		Title:        req.Title,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		StartPrice:   startPrice,
		MinIncrement: minIncrement,
		ReservePrice: reserve,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "auction created", newAuctionView(a))
}

func (h *Handlers) activateAuction(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.lifecycle.Activate(r.Context(), id, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "auction activated", newAuctionView(a))
}

func (h *Handlers) cancelAuction(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.lifecycle.Cancel(r.Context(), id, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "auction cancelled", newAuctionView(a))
}

func (h *Handlers) myAuctions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	page, pageSize := pagination(r)

	auctions, total, err := h.lifecycle.ListBySeller(r.Context(), claims.UserID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, Page{
		Items: auctionViews(auctions), Page: page, PageSize: pageSize, Total: total,
	})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.NewValidationError("INVALID_ID", "path id is not a valid uuid")
	}
	return id, nil
}

func parseMoney(field, s string) (values.Money, error) {
	m, err := values.NewMoneyFromString(s)
	if err != nil {
		return values.Money{}, errors.NewValidationError("INVALID_AMOUNT", field+" is not a valid amount")
	}
	return m, nil
}
