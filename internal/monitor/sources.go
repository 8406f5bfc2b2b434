package monitor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"solana-slot-sniper/internal/storage"
)

// UserSource enumerates the users the monitor should visit each cycle.
type UserSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// PriceSource returns the latest price snapshot for a user's entities.
type PriceSource interface {
	Prices(ctx context.Context, userID string) (map[string]float64, error)
}

// StoreUserSource lists users holding a pending order or an active position.
type StoreUserSource struct {
	Orders    storage.PendingOrderStore
	Positions storage.PositionStore // optional
}

// ActiveUsers implements UserSource. Users are returned sorted.
func (s StoreUserSource) ActiveUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	if s.Orders != nil {
		users, err := s.Orders.ListUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list order users: %w", err)
		}
		for _, u := range users {
			seen[u] = struct{}{}
		}
	}
	if s.Positions != nil {
		active, err := s.Positions.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active positions: %w", err)
		}
		for _, p := range active {
			seen[p.UserID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// RedisPriceSource reads per-user price hashes: HGETALL <prefix><user>,
// one field per entity holding a decimal price.
type RedisPriceSource struct {
	client redis.Cmdable
	prefix string
}

// DefaultRedisPrefix is the key prefix for price hashes.
const DefaultRedisPrefix = "prices:"

// NewRedisPriceSource creates a price source over client.
func NewRedisPriceSource(client redis.Cmdable, prefix string) *RedisPriceSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPriceSource{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// Prices implements PriceSource. Non-numeric and non-positive values are dropped.
func (s *RedisPriceSource) Prices(ctx context.Context, userID string) (map[string]float64, error) {
	raw, err := s.client.HGetAll(ctx, s.prefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for entity, v := range raw {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 {
			continue
		}
		out[entity] = p
	}
	return out, nil
}

// StaticPriceSource serves prices set in memory. It is safe for concurrent use.
type StaticPriceSource struct {
	mu     sync.RWMutex
	prices map[string]map[string]float64
}

// NewStaticPriceSource creates an empty StaticPriceSource.
func NewStaticPriceSource() *StaticPriceSource {
	return &StaticPriceSource{prices: make(map[string]map[string]float64)}
}

// Set stores the price of entity for userID.
func (s *StaticPriceSource) Set(userID, entity string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.prices[userID]
	if m == nil {
		m = make(map[string]float64)
		s.prices[userID] = m
	}
	m[entity] = price
}

// Prices implements PriceSource. The returned map is a copy.
func (s *StaticPriceSource) Prices(_ context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices[userID]))
	for k, v := range s.prices[userID] {
		if v > 0 {
			out[k] = v
		}
	}
	return out, nil
}

var (
	_ PriceSource = (*RedisPriceSource)(nil)
	_ PriceSource = (*StaticPriceSource)(nil)
	_ UserSource  = StoreUserSource{}
)
