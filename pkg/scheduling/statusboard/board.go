package statusboard

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
	"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
)

const (
	// DefaultKey is the Redis key prefix used when Config.Key is empty.
	DefaultKey = "elasticpool"

	// DefaultKeyTTL is how long a published status survives without a refresh.
	DefaultKeyTTL = time.Minute

	// DefaultRedisTimeout bounds each Redis round trip.
	DefaultRedisTimeout = 500 * time.Millisecond
)

// Config holds configuration for a Board.
type Config struct {
	// Redis client for publishing and reading statuses
	Redis redis.UniversalClient

	// Key is the Redis key prefix shared by every instance
	Key string

	// InstanceID uniquely identifies this process
	InstanceID string

	// KeyTTL is how long a status lives without being refreshed. It should
	// be several manager ticks long.
	KeyTTL time.Duration

	// RedisTimeout is the timeout for Redis operations
	RedisTimeout time.Duration
}

// Entry is one pool's most recently published status.
type Entry struct {
	InstanceID   string
	Pool         string
	Live         int
	Busy         int
	Queued       int
	Capacity     int
	MinWorkers   int
	MaxWorkers   int
	Submitted    int64
	Completed    int64
	Failed       int64
	Rejected     int64
	Discarded    int64
	ShuttingDown bool
	UpdatedAt    time.Time
}

// Board publishes worker pool statuses to Redis so that every instance
// sharing a key prefix can list them. It implements workerpool.Reporter.
//
// Layout, for prefix P and member M = "<instance>/<pool>":
//
//	P:instances   set of members
//	P:status:M    hash of the member's latest Stats, expiring after KeyTTL
type Board struct {
	config Config
}

var _ workerpool.Reporter = (*Board)(nil)

// New creates a Board. The Redis client is required.
func New(config Config) (*Board, error) {
	if config.Redis == nil {
		return nil, poolerrors.NewValidationError("statusboard", "Redis", nil, "redis client is required")
	}
	if config.KeyTTL < 0 {
		return nil, poolerrors.NewValidationError("statusboard", "KeyTTL", config.KeyTTL, "must not be negative")
	}
	if strings.Contains(config.InstanceID, "/") {
		return nil, poolerrors.NewValidationError("statusboard", "InstanceID", config.InstanceID, "must not contain '/'")
	}
	return &Board{config: applyDefaults(config)}, nil
}

func applyDefaults(config Config) Config {
	if config.Key == "" {
		config.Key = DefaultKey
	}
	if config.InstanceID == "" {
		config.InstanceID = GenerateInstanceID()
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = DefaultKeyTTL
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = DefaultRedisTimeout
	}
	return config
}

// InstanceID returns the identifier this board publishes under.
func (b *Board) InstanceID() string {
	return b.config.InstanceID
}

func (b *Board) instancesKey() string {
	return b.config.Key + ":instances"
}

func (b *Board) statusKey(member string) string {
	return b.config.Key + ":status:" + member
}

func (b *Board) member(pool string) string {
	return b.config.InstanceID + "/" + pool
}

// Report publishes stats as this instance's status for stats.Name.
func (b *Board) Report(ctx context.Context, stats workerpool.Stats) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RedisTimeout)
	defer cancel()

	member := b.member(stats.Name)
	key := b.statusKey(member)

	pipe := b.config.Redis.Pipeline()
	pipe.HSet(ctx, key, encodeStats(stats))
	pipe.Expire(ctx, key, b.config.KeyTTL)
	pipe.SAdd(ctx, b.instancesKey(), member)
	pipe.Expire(ctx, b.instancesKey(), b.config.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return poolerrors.NewOperationError("statusboard", "report", err).WithContext(member)
	}
	return nil
}

// Snapshot lists every live status under the key prefix, sorted by instance
// then pool. Members whose status has expired are pruned from the set.
func (b *Board) Snapshot(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.RedisTimeout)
	defer cancel()

	members, err := b.config.Redis.SMembers(ctx, b.instancesKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, poolerrors.NewOperationError("statusboard", "snapshot", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	sort.Strings(members)

	pipe := b.config.Redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, b.statusKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, poolerrors.NewOperationError("statusboard", "snapshot", err)
	}

	var entries []Entry
	var stale []interface{}
	for i, m := range members {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			stale = append(stale, m)
			continue
		}
		entry, err := decodeEntry(m, fields)
		if err != nil {
			return nil, poolerrors.NewOperationError("statusboard", "decode", err).WithContext(m)
		}
		entries = append(entries, entry)
	}

	if len(stale) > 0 {
		if err := b.config.Redis.SRem(ctx, b.instancesKey(), stale...).Err(); err != nil {
			return entries, poolerrors.NewOperationError("statusboard", "prune", err)
		}
	}
	return entries, nil
}

// Remove deletes this instance's status for pool.
func (b *Board) Remove(ctx context.Context, pool string) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RedisTimeout)
	defer cancel()

	member := b.member(pool)
	pipe := b.config.Redis.Pipeline()
	pipe.SRem(ctx, b.instancesKey(), member)
	pipe.Del(ctx, b.statusKey(member))
	if _, err := pipe.Exec(ctx); err != nil {
		return poolerrors.NewOperationError("statusboard", "remove", err).WithContext(member)
	}
	return nil
}

// encodeStats flattens stats into hash fields.
func encodeStats(s workerpool.Stats) map[string]interface{} {
	return map[string]interface{}{
		"pool":          s.Name,
		"live":          s.Live,
		"busy":          s.Busy,
		"queued":        s.Queued,
		"capacity":      s.Capacity,
		"min_workers":   s.MinWorkers,
		"max_workers":   s.MaxWorkers,
		"submitted":     s.Submitted,
		"completed":     s.Completed,
		"failed":        s.Failed,
		"rejected":      s.Rejected,
		"discarded":     s.Discarded,
		"shutting_down": strconv.FormatBool(s.ShuttingDown),
		"updated_at":    s.Time.UnixMilli(),
	}
}

// decodeEntry rebuilds an Entry from hash fields written by encodeStats.
func decodeEntry(member string, fields map[string]string) (Entry, error) {
	instance, pool, ok := strings.Cut(member, "/")
	if !ok {
		return Entry{}, fmt.Errorf("malformed member %q", member)
	}
	e := Entry{InstanceID: instance, Pool: pool}

	ints := map[string]*int{
		"live":        &e.Live,
		"busy":        &e.Busy,
		"queued":      &e.Queued,
		"capacity":    &e.Capacity,
		"min_workers": &e.MinWorkers,
		"max_workers": &e.MaxWorkers,
	}
	for field, dst := range ints {
		v, err := strconv.Atoi(fields[field])
		if err != nil {
			return Entry{}, fmt.Errorf("field %s: %w", field, err)
		}
		*dst = v
	}

	counters := map[string]*int64{
		"submitted": &e.Submitted,
		"completed": &e.Completed,
		"failed":    &e.Failed,
		"rejected":  &e.Rejected,
		"discarded": &e.Discarded,
	}
	for field, dst := range counters {
		v, err := strconv.ParseInt(fields[field], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("field %s: %w", field, err)
		}
		*dst = v
	}

	e.ShuttingDown, _ = strconv.ParseBool(fields["shutting_down"])
	if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		e.UpdatedAt = time.UnixMilli(ms)
	}
	return e, nil
}

// GenerateInstanceID creates a unique identifier for this process.
func GenerateInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	hostname = strings.ReplaceAll(hostname, "/", "_")

	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)

	return fmt.Sprintf("%s-%d-%x", hostname, os.Getpid(), randomBytes)
}
