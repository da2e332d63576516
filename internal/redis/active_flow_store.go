package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveFlow stored in redis for quick lookup by plate.
type ActiveFlow struct {
	SessionID    string  `json:"session_id"`
	LicensePlate string  `json:"license_plate"`
	StationID    string  `json:"charging_station_id"`
	ChargerID    *string `json:"charger_id,omitempty"`
}

// Store manages the active flow cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(licensePlate string) string {
	return fmt.Sprintf("flows:active:%s", licensePlate)
}

// Save caches the flow under its plate.
func (s *Store) Save(ctx context.Context, flow ActiveFlow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(flow.LicensePlate), data, s.ttl).Err()
}

// Get returns the cached flow for a plate.
func (s *Store) Get(ctx context.Context, licensePlate string) (*ActiveFlow, error) {
	result, err := s.client.Get(ctx, s.key(licensePlate)).Result()
	if err != nil {
		return nil, err
	}
	var flow ActiveFlow
	if err := json.Unmarshal([]byte(result), &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// Delete removes the cached flow.
func (s *Store) Delete(ctx context.Context, licensePlate string) error {
	return s.client.Del(ctx, s.key(licensePlate)).Err()
}
