package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/aman-bridge/internal/host"
	"github.com/saviobatista/aman-bridge/internal/types"
)

const (
	aircraftTTL = 1 * time.Hour
	overrideTTL = 24 * time.Hour

	aircraftKeyPrefix = "aircraft:"
	scanBatch         = 100
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func aircraftKey(callsign string) string {
	return aircraftKeyPrefix + callsign
}

func overrideKey(kind string) string {
	return fmt.Sprintf("override:%s", kind)
}

// StoreAircraft stores the latest aircraft snapshot in Redis
func (c *Client) StoreAircraft(ctx context.Context, snapshot *types.AircraftSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal aircraft snapshot: %w", err)
	}

	return c.client.Set(ctx, aircraftKey(snapshot.Callsign), data, aircraftTTL).Err()
}

// GetAircraft retrieves the latest aircraft snapshot, nil when unknown
func (c *Client) GetAircraft(ctx context.Context, callsign string) (*types.AircraftSnapshot, error) {
	data, err := c.client.Get(ctx, aircraftKey(callsign)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aircraft snapshot: %w", err)
	}

	var snapshot types.AircraftSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aircraft snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteAircraft removes an aircraft snapshot from Redis
func (c *Client) DeleteAircraft(ctx context.Context, callsign string) error {
	return c.client.Del(ctx, aircraftKey(callsign)).Err()
}

// SetOverride stores a runway or departure time override. The whole override set of
// a kind expires 24h after its last write.
func (c *Client) SetOverride(ctx context.Context, kind, callsign, value string) error {
	key := overrideKey(kind)
	if err := c.client.HSet(ctx, key, callsign, value).Err(); err != nil {
		return fmt.Errorf("failed to store %s override: %w", kind, err)
	}
	if err := c.client.Expire(ctx, key, overrideTTL).Err(); err != nil {
		return fmt.Errorf("failed to set %s override expiry: %w", kind, err)
	}
	return nil
}

// GetOverrides returns the stored overrides of one kind by callsign
func (c *Client) GetOverrides(ctx context.Context, kind string) (map[string]string, error) {
	values, err := c.client.HGetAll(ctx, overrideKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s overrides: %w", kind, err)
	}
	return values, nil
}

// AssignRunway implements host.Commander by persisting the override
func (c *Client) AssignRunway(ctx context.Context, callsign, runway string) error {
	return c.SetOverride(ctx, host.OverrideRunway, callsign, runway)
}

// SetDepartureTime implements host.Commander by persisting the override
func (c *Client) SetDepartureTime(ctx context.Context, callsign, hhmm string) error {
	return c.SetOverride(ctx, host.OverrideDepartureTime, callsign, hhmm)
}

// CachedCallsigns lists the callsigns with a cached snapshot
func (c *Client) CachedCallsigns(ctx context.Context) ([]string, error) {
	var callsigns []string
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, aircraftKey("*"), scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan aircraft: %w", err)
		}
		for _, key := range keys {
			callsigns = append(callsigns, strings.TrimPrefix(key, aircraftKeyPrefix))
		}
		if next == 0 {
			return callsigns, nil
		}
		cursor = next
	}
}

// WarmStore loads the persisted overrides and the cached aircraft into the host store
// and returns the number of entries loaded. Aircraft keep their original receive time,
// so those older than the store TTL are purged again on the next snapshot.
func (c *Client) WarmStore(ctx context.Context, store *host.Store) (int, error) {
	count := 0
	for _, kind := range []string{host.OverrideRunway, host.OverrideDepartureTime} {
		overrides, err := c.GetOverrides(ctx, kind)
		if err != nil {
			return count, err
		}
		for callsign, value := range overrides {
			if err := store.ApplyOverride(kind, callsign, value); err != nil {
				return count, err
			}
			count++
		}
	}

	callsigns, err := c.CachedCallsigns(ctx)
	if err != nil {
		return count, err
	}
	for _, callsign := range callsigns {
		snapshot, err := c.GetAircraft(ctx, callsign)
		if err != nil {
			return count, err
		}
		if snapshot == nil {
			// Expired between scan and get
			continue
		}
		store.UpsertAircraft(snapshot.ReceivedAt, *snapshot)
		count++
	}
	return count, nil
}
