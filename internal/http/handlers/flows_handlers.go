package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chargebroker/internal/service"
)

// FlowsHandler exposes the session lifecycle endpoints. Every mutation runs
// a synchronous refresh pass before responding.
type FlowsHandler struct {
	service *service.FlowsService
	logger  *zap.Logger
}

// NewFlowsHandler builds handler.
func NewFlowsHandler(svc *service.FlowsService, logger *zap.Logger) *FlowsHandler {
	return &FlowsHandler{service: svc, logger: logger}
}

type arrivalRequest struct {
	LicensePlate string `json:"license_plate"`
	StationID    string `json:"charging_station_id"`
}

type establishedRequest struct {
	LicensePlate string `json:"license_plate"`
	StationID    string `json:"charging_station_id"`
	ChargerID    string `json:"charger_id"`
}

// HandleArrival opens a session for an arriving vehicle.
func (h *FlowsHandler) HandleArrival(w http.ResponseWriter, r *http.Request) {
	var req arrivalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LicensePlate == "" || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "license_plate and charging_station_id required")
		return
	}
	session, err := h.service.Arrival(r.Context(), req.LicensePlate, req.StationID)
	if err != nil {
		h.logger.Warn("arrival rejected", zap.String("plate", req.LicensePlate), zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// HandleCheckin stamps a charger checkin.
func (h *FlowsHandler) HandleCheckin(w http.ResponseWriter, r *http.Request) {
	var req establishedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LicensePlate == "" || req.StationID == "" || req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "license_plate, charging_station_id and charger_id required")
		return
	}
	session, err := h.service.Checkin(r.Context(), req.LicensePlate, req.StationID, req.ChargerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleChargingEnd stamps the end of charging.
func (h *FlowsHandler) HandleChargingEnd(w http.ResponseWriter, r *http.Request) {
	var req establishedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LicensePlate == "" || req.StationID == "" || req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "license_plate, charging_station_id and charger_id required")
		return
	}
	session, err := h.service.ChargingEnd(r.Context(), req.LicensePlate, req.StationID, req.ChargerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleDeparture closes the plate's open session.
func (h *FlowsHandler) HandleDeparture(w http.ResponseWriter, r *http.Request) {
	var req arrivalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LicensePlate == "" || req.StationID == "" {
		writeError(w, http.StatusBadRequest, "license_plate and charging_station_id required")
		return
	}
	session, err := h.service.Departure(r.Context(), req.LicensePlate, req.StationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleSessionLookup resolves the open session of a plate.
func (h *FlowsHandler) HandleSessionLookup(w http.ResponseWriter, r *http.Request) {
	plate := strings.TrimSpace(r.URL.Query().Get("license_plate"))
	if plate == "" {
		writeError(w, http.StatusBadRequest, "license_plate required")
		return
	}
	session, err := h.service.Lookup(r.Context(), plate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleQueues returns per-station waiting queues.
func (h *FlowsHandler) HandleQueues(w http.ResponseWriter, r *http.Request) {
	stationID := strings.TrimSpace(r.URL.Query().Get("q"))
	entries, err := h.service.Queues(r.Context(), stationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
