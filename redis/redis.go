package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"zkteco-hub/config"

	"github.com/go-redis/redis/v8"
)

// contactTTL bounds how long an unregistered serial stays listed after its
// last contact.
const contactTTL = 24 * time.Hour

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Contact is an unregistered serial that reached the protocol endpoints.
type Contact struct {
	SerialNumber string    `json:"serialNumber"`
	IPAddress    string    `json:"ipAddress"`
	LastSeen     time.Time `json:"lastSeen"`
}

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewFromClient(rdb, cfg.KeyPrefix), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, prefix string) *RedisClient {
	if prefix == "" {
		prefix = "zkhub"
	}
	return &RedisClient{client: rdb, prefix: prefix}
}

func (r *RedisClient) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// --- Distributed lock ---

// AcquireLock sets name with a random token if it is free. The returned
// token is needed to release it.
func (r *RedisClient) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("failed to generate lock token: %w", err)
	}
	token := hex.EncodeToString(buf)

	ok, err := r.client.SetNX(ctx, r.key("lock", name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return token, ok, nil
}

func (r *RedisClient) ReleaseLock(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key("lock", name)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// --- Unregistered device contacts ---

func (r *RedisClient) RecordContact(ctx context.Context, serial, ip string, at time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key("unregistered"), &redis.Z{Score: float64(at.Unix()), Member: serial})
	pipe.HSet(ctx, r.key("unregistered", "ip"), serial, ip)
	pipe.ZRemRangeByScore(ctx, r.key("unregistered"), "-inf", strconv.FormatInt(at.Add(-contactTTL).Unix(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record contact for %s: %w", serial, err)
	}
	return nil
}

func (r *RedisClient) ForgetContact(ctx context.Context, serial string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.key("unregistered"), serial)
	pipe.HDel(ctx, r.key("unregistered", "ip"), serial)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget contact for %s: %w", serial, err)
	}
	return nil
}

// ListContacts returns contacts newer than the TTL, most recent first.
func (r *RedisClient) ListContacts(ctx context.Context, now time.Time) ([]Contact, error) {
	min := strconv.FormatInt(now.Add(-contactTTL).Unix(), 10)
	entries, err := r.client.ZRevRangeByScoreWithScores(ctx, r.key("unregistered"), &redis.ZRangeBy{
		Min: min, Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	if len(entries) == 0 {
		return []Contact{}, nil
	}

	serials := make([]string, len(entries))
	for i, e := range entries {
		serials[i] = fmt.Sprint(e.Member)
	}
	ips, err := r.client.HMGet(ctx, r.key("unregistered", "ip"), serials...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load contact addresses: %w", err)
	}

	contacts := make([]Contact, len(entries))
	for i, e := range entries {
		ip, _ := ips[i].(string)
		contacts[i] = Contact{
			SerialNumber: serials[i],
			IPAddress:    ip,
			LastSeen:     time.Unix(int64(e.Score), 0).UTC(),
		}
	}
	return contacts, nil
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
