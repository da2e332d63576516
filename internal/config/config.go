package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the broker service configuration. Engine knobs are plain
// second counts so they can come straight from the environment.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"BROKER_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"BROKER_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"BROKER_REDIS_ADDR"`
		Password string `yaml:"password" env:"BROKER_REDIS_PASSWORD"`
		TTL      int    `yaml:"ttlSeconds" env:"BROKER_REDIS_TTL"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"BROKER_JWT_SECRET"`
		TokenTTL  int    `yaml:"tokenTtlSeconds" env:"BROKER_TOKEN_TTL"`
	} `yaml:"auth"`
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig carries the flow-refresh engine durations, in seconds.
type EngineConfig struct {
	CronInterval             int `yaml:"cronIntervalSeconds" env:"CRON_REFRESH_INTERVAL"`
	CronBlockInterval        int `yaml:"cronBlockSeconds" env:"CRON_BLOCK_INTERVAL"`
	OfferChangeGrace         int `yaml:"offerChangeGraceSeconds" env:"AUCTION_OFFER_MINIMUM_CHANGE_DURATION"`
	SpotAssignLockDuration   int `yaml:"spotAssignLockSeconds" env:"AUCTION_SPOT_ASSIGN_LOCK_DURATION"`
	MaxAuctionDuration       int `yaml:"maxAuctionSeconds" env:"AUCTION_MAXIMUM_DURATION"`
	ReservationCheckInterval int `yaml:"reservationCheckSeconds" env:"AUCTION_RESERVATION_CHECK"`
	EarlyArrivalSlack        int `yaml:"earlyArrivalSlackSeconds" env:"RESERVATION_EARLY_ARRIVAL_SLACK"`
	LateArrivalSlack         int `yaml:"lateArrivalSlackSeconds" env:"RESERVATION_LATE_ARRIVAL_SLACK"`
	ReservationLookAhead     int `yaml:"reservationLookAheadSeconds" env:"SPOT_ASSIGN_RESERVATION_LOOK_AHEAD"`
	EarliestReservationLead  int `yaml:"earliestReservationLeadSeconds" env:"RESERVATION_EARLIEST_POSSIBLE"`
	MaxReservationDuration   int `yaml:"maxReservationSeconds" env:"RESERVATION_MAXIMUM_DURATION"`
	LatestDeletionSlack      int `yaml:"latestDeletionSlackSeconds" env:"RESERVATION_LATEST_DELETION_IN_PAST"`
}

// Load reads configuration via the shared loader and validates required keys.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTL = 7200
	cfg.Auth.TokenTTL = 3600
	cfg.Engine = EngineConfig{
		CronInterval:             300,
		CronBlockInterval:        60,
		OfferChangeGrace:         30,
		SpotAssignLockDuration:   900,
		MaxAuctionDuration:       300,
		ReservationCheckInterval: 3600,
		EarlyArrivalSlack:        600,
		LateArrivalSlack:         600,
		ReservationLookAhead:     86400,
		EarliestReservationLead:  3600,
		MaxReservationDuration:   14400,
		LatestDeletionSlack:      900,
	}

	if err := load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveFlowTTL returns the redis cache ttl as duration.
func (c *Config) ActiveFlowTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// TokenTTL returns the bearer token lifetime.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Auth.TokenTTL) * time.Second
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CronInterval returns the periodic refresh interval.
func (e EngineConfig) CronIntervalDuration() time.Duration { return seconds(e.CronInterval) }

// CronBlockDuration is the debounce threshold for scheduled passes.
func (e EngineConfig) CronBlockDuration() time.Duration { return seconds(e.CronBlockInterval) }

// OfferGraceDuration is the locked-in window after an offer is placed.
func (e EngineConfig) OfferGraceDuration() time.Duration { return seconds(e.OfferChangeGrace) }

// LockDuration is the lifetime of a spot-assign lock won at auction.
func (e EngineConfig) LockDuration() time.Duration { return seconds(e.SpotAssignLockDuration) }

// AuctionDuration is the bidding window for a new auction.
func (e EngineConfig) AuctionDuration() time.Duration { return seconds(e.MaxAuctionDuration) }

// ReservationCheckDuration bounds the future-reservation headroom check when
// seeding spot-auction counterparties.
func (e EngineConfig) ReservationCheckDuration() time.Duration {
	return seconds(e.ReservationCheckInterval)
}

// EarlySlackDuration and LateSlackDuration bound reservation fulfillment
// around the reserved start time.
func (e EngineConfig) EarlySlackDuration() time.Duration { return seconds(e.EarlyArrivalSlack) }

// LateSlackDuration is the post-start window a reservation holder may arrive in.
func (e EngineConfig) LateSlackDuration() time.Duration { return seconds(e.LateArrivalSlack) }

// LookAheadDuration bounds the capacity check when shrinking charger counts.
func (e EngineConfig) LookAheadDuration() time.Duration { return seconds(e.ReservationLookAhead) }

// EarliestLeadDuration is the minimum lead time for a new reservation.
func (e EngineConfig) EarliestLeadDuration() time.Duration {
	return seconds(e.EarliestReservationLead)
}

// MaxReservationDurationD caps a single reservation window.
func (e EngineConfig) MaxReservationDurationD() time.Duration {
	return seconds(e.MaxReservationDuration)
}

// DeletionSlackDuration is how far in the past a reservation may still be removed.
func (e EngineConfig) DeletionSlackDuration() time.Duration { return seconds(e.LatestDeletionSlack) }
