package httpserver

import "net/http"

// Routes groups handlers. Handlers arrive already wrapped with whatever
// middleware they need.
type Routes struct {
	Arrival       http.Handler
	Checkin       http.Handler
	ChargingEnd   http.Handler
	Departure     http.Handler
	SessionLookup http.Handler
	Queues        http.Handler

	AuctionCreate http.Handler
	AuctionList   http.Handler
	AuctionOffer  http.Handler
	AuctionRemove http.Handler

	ReservationCreate http.Handler
	ReservationList   http.Handler
	ReservationRemove http.Handler

	StationList   http.Handler
	StationUpsert http.Handler
	ChargerList   http.Handler
	ChargerUpsert http.Handler

	FleetList   http.Handler
	FleetUpsert http.Handler

	Register http.Handler
	Login    http.Handler

	RefreshFeed http.Handler
	Health      http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	register := func(pattern, method string, handler http.Handler) {
		if handler != nil {
			mux.Handle(pattern, requireMethod(method, handler))
		}
	}

	register("/arrivals", http.MethodPost, routes.Arrival)
	register("/checkins", http.MethodPost, routes.Checkin)
	register("/charging-end", http.MethodPost, routes.ChargingEnd)
	register("/departures", http.MethodPost, routes.Departure)
	register("/sessions", http.MethodGet, routes.SessionLookup)
	register("/queues", http.MethodGet, routes.Queues)

	register("/auctions", http.MethodGet, routes.AuctionList)
	register("/auctions/create", http.MethodPost, routes.AuctionCreate)
	register("/auction-offers", http.MethodPost, routes.AuctionOffer)
	register("/auctions/remove", http.MethodPost, routes.AuctionRemove)

	register("/reservations", http.MethodGet, routes.ReservationList)
	register("/reservations/create", http.MethodPost, routes.ReservationCreate)
	register("/reservations/remove", http.MethodPost, routes.ReservationRemove)

	register("/admin/stations", http.MethodGet, routes.StationList)
	register("/admin/stations/upsert", http.MethodPost, routes.StationUpsert)
	register("/admin/chargers", http.MethodGet, routes.ChargerList)
	register("/admin/chargers/upsert", http.MethodPost, routes.ChargerUpsert)

	register("/fleets", http.MethodGet, routes.FleetList)
	register("/admin/fleets/upsert", http.MethodPost, routes.FleetUpsert)

	register("/auth/register", http.MethodPost, routes.Register)
	register("/auth/login", http.MethodPost, routes.Login)

	register("/ws/refresh-feed", http.MethodGet, routes.RefreshFeed)
	register("/health", http.MethodGet, routes.Health)

	return mux
}

func requireMethod(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
