package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chargebroker/internal/models"
	"chargebroker/internal/service"
)

// StationHandler exposes the admin surface for stations and chargers.
type StationHandler struct {
	service *service.StationService
	logger  *zap.Logger
}

// NewStationHandler builds handler.
func NewStationHandler(svc *service.StationService, logger *zap.Logger) *StationHandler {
	return &StationHandler{service: svc, logger: logger}
}

// HandleListStations returns all stations, or one via ?id=.
func (h *StationHandler) HandleListStations(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		station, err := h.service.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, station)
		return
	}
	stations, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

// HandleUpsertStation creates or updates a station.
func (h *StationHandler) HandleUpsertStation(w http.ResponseWriter, r *http.Request) {
	var station models.Station
	if !decodeBody(w, r, &station) {
		return
	}
	if station.ID == "" {
		writeError(w, http.StatusBadRequest, "charging_station_id required")
		return
	}
	if err := h.service.UpsertStation(r.Context(), station); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

// HandleListChargers returns chargers, optionally one station's via ?station=.
func (h *StationHandler) HandleListChargers(w http.ResponseWriter, r *http.Request) {
	stationID := strings.TrimSpace(r.URL.Query().Get("station"))
	chargers, err := h.service.ListChargers(r.Context(), stationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chargers)
}

// HandleUpsertCharger creates or updates a charger.
func (h *StationHandler) HandleUpsertCharger(w http.ResponseWriter, r *http.Request) {
	var charger models.Charger
	if !decodeBody(w, r, &charger) {
		return
	}
	if charger.ID == "" || charger.StationID == "" {
		writeError(w, http.StatusBadRequest, "charger_id and charging_station_id required")
		return
	}
	if err := h.service.UpsertCharger(r.Context(), charger); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charger)
}
