package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/http/middleware"
	"chargebroker/internal/models"
	"chargebroker/internal/service"
)

// ReservationHandler exposes reservation booking for fleet companies.
type ReservationHandler struct {
	service *service.ReservationService
	logger  *zap.Logger
}

// NewReservationHandler builds handler.
func NewReservationHandler(svc *service.ReservationService, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{service: svc, logger: logger}
}

type reservationRequest struct {
	LicensePlate string    `json:"license_plate"`
	StationID    string    `json:"charging_station_id"`
	StartTs      time.Time `json:"start_ts"`
	EndTs        time.Time `json:"end_ts"`
}

type createReservationsRequest struct {
	Reservations []reservationRequest `json:"reservations"`
}

// HandleCreate books a batch of reservations atomically.
func (h *ReservationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req createReservationsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	requested := make([]models.Reservation, 0, len(req.Reservations))
	for _, res := range req.Reservations {
		if res.LicensePlate == "" || res.StationID == "" {
			writeError(w, http.StatusBadRequest, "license_plate and charging_station_id required")
			return
		}
		requested = append(requested, models.Reservation{
			LicensePlate: res.LicensePlate,
			StationID:    res.StationID,
			StartTs:      res.StartTs.UTC(),
			EndTs:        res.EndTs.UTC(),
		})
	}

	if err := h.service.CreateBatch(r.Context(), claims.CompanyID, requested); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": len(requested)})
}

// HandleRemove deletes one reservation of the caller's fleet.
func (h *ReservationHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req reservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LicensePlate == "" || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "license_plate and charging_station_id required")
		return
	}
	res := models.Reservation{
		LicensePlate: req.LicensePlate,
		StationID:    req.StationID,
		StartTs:      req.StartTs.UTC(),
		EndTs:        req.EndTs.UTC(),
	}
	if err := h.service.Remove(r.Context(), claims.CompanyID, res); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reservation removed"})
}

// HandleList returns the caller's reservations; admins see all.
func (h *ReservationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	reservations, err := h.service.List(r.Context(), claims.CompanyID, claims.IsAdmin)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}
