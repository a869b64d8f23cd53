package rest

import (
	"net/http"

	"github.com/hammerstone/live-auction-backend/internal/service/bidding"
)

type bidResultView struct {
	BidID           string `json:"bid_id"`
	AuctionID       string `json:"auction_id"`
	Amount          string `json:"amount"`
	NewCurrentPrice string `json:"new_current_price"`
	MinimumNextBid  string `json:"minimum_next_bid"`
	TotalBids       int    `json:"total_bids"`
}

func (h *Handlers) placeBid(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	auctionID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req placeBidRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.bidding.PlaceBid(r.Context(), bidding.PlaceBidRequest{
		AuctionID:     auctionID,
		BidderID:      claims.UserID,
		Amount:        amount,
		SourceAddress: clientAddress(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, http.StatusCreated, "bid accepted", bidResultView{
		BidID:           result.Bid.ID.String(),
		AuctionID:       result.Bid.AuctionID.String(),
		Amount:          result.Bid.Amount.String(),
		NewCurrentPrice: result.NewCurrentPrice.String(),
		MinimumNextBid:  result.MinimumNextBid.String(),
		TotalBids:       result.TotalBids,
	})
}

func (h *Handlers) bidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, pageSize := pagination(r)

	bids, total, err := h.bidding.GetBidHistory(r.Context(), auctionID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, Page{Items: bids, Page: page, PageSize: pageSize, Total: total})
}

func (h *Handlers) myBids(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	page, pageSize := pagination(r)

	bids, total, err := h.bidding.GetUserBids(r.Context(), claims.UserID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, Page{Items: bids, Page: page, PageSize: pageSize, Total: total})
}
