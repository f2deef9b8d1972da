package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "flowline:"

// createScript stores KEYS[1] once (SET NX, optional PX ARGV[2]) and adds
// ARGV[4] with score ARGV[3] to every index in KEYS[2:]. Index types are
// checked first so a failure leaves nothing behind. Returns 0 if KEYS[1]
// already exists.
var createScript = backend.NewScript(`
for i = 2, #KEYS do
	local t = redis.call("TYPE", KEYS[i])["ok"]
	if t ~= "none" and t ~= "zset" then
		return redis.error_reply("index " .. KEYS[i] .. " holds a " .. t)
	end
end
local set
if tonumber(ARGV[2]) > 0 then
	set = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2])
else
	set = redis.call("SET", KEYS[1], ARGV[1], "NX")
end
if not set then
	return 0
end
for i = 2, #KEYS do
	redis.call("ZADD", KEYS[i], ARGV[3], ARGV[4])
end
return 1
`)

// Store implements ports.Store using Redis.
//
// Layout (relative to the prefix):
//
//	graph:<id>           graph JSON
//	graphs               ZSET of graph IDs (score 0, lexical order)
//	run:<id>             run JSON, expires after the configured TTL
//	runs                 ZSET of run IDs scored by creation time
//	runs:by-graph:<id>   same, restricted to one graph
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for runs. Graphs never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client, e.g. to build a Locker on the same connection.
func (s *Store) Client() *backend.Client { return s.client }

func (s *Store) graphKey(id string) string { return s.prefix + "graph:" + id }
func (s *Store) graphIndex() string        { return s.prefix + "graphs" }
func (s *Store) runKey(id string) string   { return s.prefix + "run:" + id }
func (s *Store) runIndex() string          { return s.prefix + "runs" }
func (s *Store) graphRunIndex(graphID string) string {
	return s.prefix + "runs:by-graph:" + graphID
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateGraph persists and indexes the graph. SET NX gives create-once semantics.
func (s *Store) CreateGraph(ctx context.Context, graph *domain.Graph) error {
	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	created, err := s.create(ctx, []string{s.graphKey(graph.ID()), s.graphIndex()}, data, 0, 0, graph.ID())
	if err != nil {
		return fmt.Errorf("failed to save graph to redis: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrGraphExists, graph.ID())
	}
	return nil
}

// GetGraph loads and re-validates a graph.
func (s *Store) GetGraph(ctx context.Context, graphID string) (*domain.Graph, error) {
	val, err := s.client.Get(ctx, s.graphKey(graphID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrGraphNotFound
		}
		return nil, fmt.Errorf("failed to get graph from redis: %w", err)
	}

	var g domain.Graph
	if err := json.Unmarshal(val, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &g, nil
}

// ListGraphs returns the graph IDs in lexical order.
func (s *Store) ListGraphs(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.graphIndex(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	return ids, nil
}

// CreateRun persists a new run and indexes it.
func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	keys := []string{s.runKey(run.ID), s.runIndex(), s.graphRunIndex(run.GraphID)}
	created, err := s.create(ctx, keys, data, s.ttl, float64(run.CreatedAt.UnixMilli()), run.ID)
	if err != nil {
		return fmt.Errorf("failed to save run to redis: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", domain.ErrRunExists, run.ID)
	}
	return nil
}

// create writes a record and its index entries in one atomic step.
func (s *Store) create(ctx context.Context, keys []string, data []byte, ttl time.Duration, score float64, member string) (bool, error) {
	n, err := createScript.Run(ctx, s.client, keys, data, ttl.Milliseconds(), score, member).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveRun overwrites an existing run (SET XX), refreshing its TTL.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.runKey(run.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save run to redis: %w", err)
	}
	if !ok {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	val, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run from redis: %w", err)
	}
	return decodeRun(val)
}

// ListRuns returns the matching runs, oldest first.
// Index entries whose run has expired are removed lazily.
func (s *Store) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	index := s.runIndex()
	if filter.GraphID != "" {
		index = s.graphRunIndex(filter.GraphID)
	}

	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(vals))
	var expired []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		run, err := decodeRun([]byte(raw))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if len(expired) > 0 {
		// Lazy cleanup
		pipe := s.client.Pipeline()
		pipe.ZRem(ctx, s.runIndex(), expired...)
		if filter.GraphID != "" {
			pipe.ZRem(ctx, index, expired...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to prune expired runs: %w", err)
		}
	}

	ports.SortRuns(runs)
	return runs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeRun(data []byte) (*domain.Run, error) {
	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	if run.State == nil {
		run.State = domain.State{}
	}
	if run.Iterations == nil {
		run.Iterations = make(map[string]int)
	}
	return &run, nil
}
