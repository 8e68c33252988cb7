package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// SpendTracker maintains fast month-to-date spend counters per user.
// The counters are operational approximations; authoritative totals
// always come from the usage store.
type SpendTracker interface {
	// Add credits amount against the user's month bucket.
	Add(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error

	// MonthToDate returns the accumulated spend for the month
	// containing at, zero when nothing was recorded.
	MonthToDate(ctx context.Context, userID string, at time.Time) (decimal.Decimal, error)

	Close() error
}

// NoopSpendTracker ignores spend. Used when tracking is not configured.
type NoopSpendTracker struct{}

func (NoopSpendTracker) Add(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error {
	return nil
}

func (NoopSpendTracker) MonthToDate(ctx context.Context, userID string, at time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (NoopSpendTracker) Close() error { return nil }

// Month buckets outlive the month they cover long enough for reports.
const spendKeyTTL = 90 * 24 * time.Hour

// SpendConfig holds Redis connection settings for the spend tracker.
type SpendConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KeyPrefix defaults to "spend".
	KeyPrefix string
}

// RedisSpendTracker accumulates spend in Redis under
// <prefix>:<user_id>:<YYYY-MM> keys.
type RedisSpendTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisSpendTracker connects to Redis and verifies the connection
// before returning.
func NewRedisSpendTracker(config SpendConfig) (*RedisSpendTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "spend"
	}

	return &RedisSpendTracker{client: client, prefix: prefix}, nil
}

func (t *RedisSpendTracker) key(userID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", t.prefix, userID, at.UTC().Format("2006-01"))
}

// Add increments the month bucket and refreshes its expiry.
func (t *RedisSpendTracker) Add(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error {
	if userID == "" || !amount.IsPositive() {
		return nil
	}

	key := t.key(userID, at)
	pipe := t.client.Pipeline()
	pipe.IncrByFloat(ctx, key, amount.InexactFloat64())
	pipe.Expire(ctx, key, spendKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record spend: %w", err)
	}
	return nil
}

// MonthToDate reads the month bucket.
func (t *RedisSpendTracker) MonthToDate(ctx context.Context, userID string, at time.Time) (decimal.Decimal, error) {
	value, err := t.client.Get(ctx, t.key(userID, at)).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read spend: %w", err)
	}

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed spend counter %q: %w", value, err)
	}
	return amount, nil
}

// Close releases the Redis connection.
func (t *RedisSpendTracker) Close() error {
	return t.client.Close()
}
