package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/db"
	"chargebroker/internal/engine"
	httpserver "chargebroker/internal/http"
	"chargebroker/internal/http/handlers"
	"chargebroker/internal/http/middleware"
	redisstore "chargebroker/internal/redis"
	"chargebroker/internal/repository"
	"chargebroker/internal/service"
	"chargebroker/internal/ws"
)

// App wires the broker's dependencies.
type App struct {
	server      *httpserver.Server
	refresher   *engine.Refresher
	hub         *ws.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	hub := ws.NewHub(30*time.Second, logger)
	refresher := engine.NewRefresher(sqlDB, cfg.Engine, logger, time.Now, hub)

	sessionRepo := repository.NewSessionRepository(sqlDB)
	stationRepo := repository.NewStationRepository(sqlDB)
	chargerRepo := repository.NewChargerRepository(sqlDB)
	reservationRepo := repository.NewReservationRepository(sqlDB)
	auctionRepo := repository.NewAuctionRepository(sqlDB)
	fleetRepo := repository.NewFleetRepository(sqlDB)
	userRepo := repository.NewUserRepository(sqlDB)

	activeStore := redisstore.NewStore(redisClient, cfg.ActiveFlowTTL())

	flowsService := service.NewFlowsService(sessionRepo, stationRepo, activeStore, refresher, logger, time.Now)
	auctionService := service.NewAuctionService(auctionRepo, chargerRepo, reservationRepo, fleetRepo, stationRepo, cfg.Engine, logger, time.Now)
	reservationService := service.NewReservationService(sqlDB, cfg.Engine, logger, time.Now)
	stationService := service.NewStationService(stationRepo, chargerRepo, reservationRepo, cfg.Engine, logger, time.Now)
	authService := service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.TokenTTL(), logger, time.Now)

	flowsHandler := handlers.NewFlowsHandler(flowsService, logger)
	auctionHandler := handlers.NewAuctionHandler(auctionService, logger)
	reservationHandler := handlers.NewReservationHandler(reservationService, logger)
	stationHandler := handlers.NewStationHandler(stationService, logger)
	fleetHandler := handlers.NewFleetHandler(fleetRepo, logger)
	authHandler := handlers.NewAuthHandler(authService, logger)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(middleware.RequireAdmin(h)) }

	routes := httpserver.Routes{
		Arrival:       authed(flowsHandler.HandleArrival),
		Checkin:       authed(flowsHandler.HandleCheckin),
		ChargingEnd:   authed(flowsHandler.HandleChargingEnd),
		Departure:     authed(flowsHandler.HandleDeparture),
		SessionLookup: authed(flowsHandler.HandleSessionLookup),
		Queues:        authed(flowsHandler.HandleQueues),

		AuctionCreate: authed(auctionHandler.HandleCreate),
		AuctionList:   authed(auctionHandler.HandleList),
		AuctionOffer:  authed(auctionHandler.HandlePlaceOffer),
		AuctionRemove: authed(auctionHandler.HandleRemove),

		ReservationCreate: authed(reservationHandler.HandleCreate),
		ReservationList:   authed(reservationHandler.HandleList),
		ReservationRemove: authed(reservationHandler.HandleRemove),

		StationList:   admin(stationHandler.HandleListStations),
		StationUpsert: admin(stationHandler.HandleUpsertStation),
		ChargerList:   admin(stationHandler.HandleListChargers),
		ChargerUpsert: admin(stationHandler.HandleUpsertCharger),

		FleetList:   authed(fleetHandler.HandleList),
		FleetUpsert: admin(fleetHandler.HandleUpsert),

		Register: http.HandlerFunc(authHandler.HandleRegister),
		Login:    http.HandlerFunc(authHandler.HandleLogin),

		RefreshFeed: authed(handlers.NewRefreshFeedHandler(hub, logger)),
		Health:      http.HandlerFunc(handlers.NewHealthHandler()),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		refresher:   refresher,
		hub:         hub,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server, the refresh cron and the feed ping loop.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Start(ctx)
	go a.refresher.Run(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
