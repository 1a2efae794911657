// Package runstore keeps the summary of every finished run in Redis.
//
// Summaries are stored as hashes at flexmarket:{namespace}:run:{id} and
// indexed by finish time in the sorted set flexmarket:{namespace}:runs.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Config selects the Redis server. An empty address disables the store.
type Config struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace"`
}

func (c Config) Enabled() bool { return c.Addr != "" }

func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "default"
	}
}

func (c Config) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("runstore: negative db %d", c.DB)
	}
	return nil
}

// Summary is the outcome of one simulated day.
type Summary struct {
	RunID      string        `json:"run_id"`
	Instance   string        `json:"instance"`
	Converged  bool          `json:"converged"`
	Reason     string        `json:"reason"`
	Iterations int           `json:"iterations"`
	Welfare    float64       `json:"welfare"`
	Elapsed    time.Duration `json:"elapsed"`
	Output     string        `json:"output,omitempty"`
	Err        string        `json:"error,omitempty"`
	Finished   time.Time     `json:"finished"`
}

// Store is a namespaced Redis client.
type Store struct {
	rdb       *redis.Client
	namespace string
}

// New connects to the server described by cfg.
func New(cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.Namespace), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{rdb: rdb, namespace: namespace}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// RunKey returns the hash key of a run.
func RunKey(namespace, id string) string {
	return fmt.Sprintf("flexmarket:%s:run:%s", namespace, id)
}

// IndexKey returns the sorted set ordering runs by finish time.
func IndexKey(namespace string) string {
	return fmt.Sprintf("flexmarket:%s:runs", namespace)
}

// Save writes the summary and indexes it atomically.
func (s *Store) Save(ctx context.Context, sum Summary) error {
	if sum.RunID == "" {
		return fmt.Errorf("runstore: empty run id")
	}
	if sum.Finished.IsZero() {
		sum.Finished = time.Now()
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, RunKey(s.namespace, sum.RunID), toHash(sum))
	pipe.ZAdd(ctx, IndexKey(s.namespace), redis.Z{
		Score:  float64(sum.Finished.UnixMilli()),
		Member: sum.RunID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("runstore: save %s: %w", sum.RunID, err)
	}
	return nil
}

// Load reads one summary.
func (s *Store) Load(ctx context.Context, id string) (Summary, error) {
	h, err := s.rdb.HGetAll(ctx, RunKey(s.namespace, id)).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("runstore: load %s: %w", id, err)
	}
	if len(h) == 0 {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fromHash(h)
}

// List returns up to limit summaries, most recently finished first. A
// non-positive limit returns all of them. Index entries whose hash has
// expired are skipped.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRevRange(ctx, IndexKey(s.namespace), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("runstore: list: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func toHash(s Summary) map[string]interface{} {
	return map[string]interface{}{
		"run_id":     s.RunID,
		"instance":   s.Instance,
		"converged":  strconv.FormatBool(s.Converged),
		"reason":     s.Reason,
		"iterations": strconv.Itoa(s.Iterations),
		"welfare":    strconv.FormatFloat(s.Welfare, 'g', -1, 64),
		"elapsed_ms": strconv.FormatInt(s.Elapsed.Milliseconds(), 10),
		"output":     s.Output,
		"error":      s.Err,
		"finished":   s.Finished.UTC().Format(time.RFC3339Nano),
	}
}

func fromHash(h map[string]string) (Summary, error) {
	s := Summary{
		RunID:    h["run_id"],
		Instance: h["instance"],
		Reason:   h["reason"],
		Output:   h["output"],
		Err:      h["error"],
	}
	var err error
	if s.Converged, err = strconv.ParseBool(h["converged"]); err != nil {
		return s, fmt.Errorf("runstore: converged: %w", err)
	}
	if s.Iterations, err = strconv.Atoi(h["iterations"]); err != nil {
		return s, fmt.Errorf("runstore: iterations: %w", err)
	}
	if s.Welfare, err = strconv.ParseFloat(h["welfare"], 64); err != nil {
		return s, fmt.Errorf("runstore: welfare: %w", err)
	}
	ms, err := strconv.ParseInt(h["elapsed_ms"], 10, 64)
	if err != nil {
		return s, fmt.Errorf("runstore: elapsed: %w", err)
	}
	s.Elapsed = time.Duration(ms) * time.Millisecond
	if s.Finished, err = time.Parse(time.RFC3339Nano, h["finished"]); err != nil {
		return s, fmt.Errorf("runstore: finished: %w", err)
	}
	return s, nil
}
