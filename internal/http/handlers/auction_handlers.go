package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chargebroker/internal/http/middleware"
	"chargebroker/internal/models"
	"chargebroker/internal/service"
)

// AuctionHandler exposes auction creation, bidding and lookup.
type AuctionHandler struct {
	service *service.AuctionService
	logger  *zap.Logger
}

// NewAuctionHandler builds handler.
func NewAuctionHandler(svc *service.AuctionService, logger *zap.Logger) *AuctionHandler {
	return &AuctionHandler{service: svc, logger: logger}
}

type createAuctionRequest struct {
	Type             string     `json:"auction_type"`
	StationID        string     `json:"charging_station_id"`
	LicensePlate     string     `json:"license_plate"`
	MaxAcceptedPrice *string    `json:"max_accepted_price"`
	AutoAccept       bool       `json:"auto_accept"`
	StartTs          *time.Time `json:"start_ts"`
	EndTs            *time.Time `json:"end_ts"`
}

// HandleCreate opens a new auction for the caller's company.
func (h *AuctionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req createAuctionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StationID == "" || req.LicensePlate == "" {
		writeError(w, http.StatusBadRequest, "charging_station_id and license_plate required")
		return
	}

	input := service.CreateAuctionInput{
		StationID:    req.StationID,
		LicensePlate: req.LicensePlate,
		CompanyID:    claims.CompanyID,
		AutoAccept:   req.AutoAccept,
	}
	if req.MaxAcceptedPrice != nil {
		price, err := decimal.NewFromString(*req.MaxAcceptedPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_accepted_price")
			return
		}
		input.MaxAcceptedPrice = &price
	}

	var auction *models.Auction
	var err error
	switch req.Type {
	case models.AuctionTypeSpot:
		auction, err = h.service.CreateSpotAuction(r.Context(), input)
	case models.AuctionTypeReservation:
		if req.StartTs == nil || req.EndTs == nil {
			writeError(w, http.StatusBadRequest, "start_ts and end_ts required for reservation auctions")
			return
		}
		input.StartTs = req.StartTs.UTC()
		input.EndTs = req.EndTs.UTC()
		auction, err = h.service.CreateReservationAuction(r.Context(), input)
	default:
		writeError(w, http.StatusBadRequest, "auction_type must be SPOT or RESERVATION")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, auction)
}

// HandleList returns the caller's open auctions (all for admins), or one
// auction via ?id=.
func (h *AuctionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		auction, err := h.service.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, auction)
		return
	}
	auctions, err := h.service.ListOpen(r.Context(), claims.CompanyID, claims.IsAdmin)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auctions)
}

type placeOfferRequest struct {
	AuctionID string `json:"auction_id"`
	Offer     string `json:"offer"`
}

// HandlePlaceOffer records the caller's bid.
func (h *AuctionHandler) HandlePlaceOffer(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if claims.IsAdmin {
		writeError(w, http.StatusForbidden, "admins cannot bid")
		return
	}
	var req placeOfferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AuctionID == "" {
		writeError(w, http.StatusBadRequest, "auction_id required")
		return
	}
	bid, err := decimal.NewFromString(req.Offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer")
		return
	}
	if err := h.service.PlaceOffer(r.Context(), req.AuctionID, claims.CompanyID, bid); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "offer recorded"})
}

type removeAuctionRequest struct {
	AuctionID string `json:"auction_id"`
}

// HandleRemove withdraws the caller's open auction.
func (h *AuctionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req removeAuctionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AuctionID == "" {
		writeError(w, http.StatusBadRequest, "auction_id required")
		return
	}
	if err := h.service.Remove(r.Context(), req.AuctionID, claims.CompanyID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "auction removed"})
}
