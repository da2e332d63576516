package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargebroker/internal/http/middleware"
	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// FleetHandler exposes the fleet registry.
type FleetHandler struct {
	fleets *repository.FleetRepository
	logger *zap.Logger
}

// NewFleetHandler builds handler.
func NewFleetHandler(fleets *repository.FleetRepository, logger *zap.Logger) *FleetHandler {
	return &FleetHandler{fleets: fleets, logger: logger}
}

// HandleList returns the caller's fleet vehicles.
func (h *FleetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	vehicles, err := h.fleets.ListByCompany(r.Context(), claims.CompanyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// HandleUpsert registers or updates a vehicle. Admin only.
func (h *FleetHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var vehicle models.FleetVehicle
	if !decodeBody(w, r, &vehicle) {
		return
	}
	if vehicle.LicensePlate == "" || vehicle.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "license_plate and company_id required")
		return
	}
	if err := h.fleets.Upsert(r.Context(), vehicle); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}
