package cache

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// AllTables is the pseudo-table written by statements whose targets are
// unknown. Every cache key depends on its generation.
const AllTables = "*"

// RowSet is a fully drained result set
type RowSet struct {
	Columns []string `msgpack:"c"`
	Rows    [][]any  `msgpack:"r"`
}

// QueryCache caches statement results per table generation. Backend
// failures are logged and treated as misses.
type QueryCache struct {
	backend Backend
	config  Config
	logger  *zap.Logger
}

// NewQueryCache creates a query cache over backend
func NewQueryCache(backend Backend, cfg Config, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{backend: backend, config: cfg, logger: logger}
}

// Load decodes the entry at key into dest and reports a hit
func (q *QueryCache) Load(ctx context.Context, key string, dest any) bool {
	data, err := q.backend.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			q.logger.Warn("cache read failed", zap.Error(err))
		}
		return false
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(dest); err != nil {
		q.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Store caches v at key. The key must have been taken before the statement
// ran so a commit in between orphans the entry instead of hiding it.
func (q *QueryCache) Store(ctx context.Context, key string, v any) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		q.logger.Warn("cache entry unencodable", zap.Error(err))
		return
	}
	if err := q.backend.Set(ctx, key, data, q.config.DefaultTTL); err != nil {
		q.logger.Warn("cache write failed", zap.Error(err))
	}
}

// Invalidate moves tables to a new generation, orphaning their entries
func (q *QueryCache) Invalidate(ctx context.Context, tables []string) {
	for _, t := range tables {
		if err := q.backend.Set(ctx, generationKey(t), []byte(uuid.NewString()), q.config.GenerationTTL); err != nil {
			q.logger.Warn("cache invalidation failed", zap.String("table", t), zap.Error(err))
			continue
		}
		q.logger.Debug("invalidated table", zap.String("table", t))
	}
}

// generation returns the current token of table, starting one if absent
func (q *QueryCache) generation(ctx context.Context, table string) (string, error) {
	data, err := q.backend.Get(ctx, generationKey(table))
	if err == nil {
		return string(data), nil
	}
	if !IsCacheMiss(err) {
		return "", err
	}
	token := uuid.NewString()
	if err := q.backend.Set(ctx, generationKey(table), []byte(token), q.config.GenerationTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Key derives the entry key of statement from its arguments and the current
// generation of every table it reads
func (q *QueryCache) Key(ctx context.Context, tables []string, statement string, args []any) (string, error) {
	encoded, err := msgpack.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}

	sorted := append([]string{AllTables}, tables...)
	sort.Strings(sorted)

	d := xxhash.New()
	d.WriteString(statement)
	d.Write([]byte{0})
	d.Write(encoded)
	for _, t := range sorted {
		gen, err := q.generation(ctx, t)
		if err != nil {
			return "", err
		}
		d.WriteString(t)
		d.WriteString("=")
		d.WriteString(gen)
	}
	return "q:" + strconv.FormatUint(d.Sum64(), 16), nil
}

func generationKey(table string) string {
	return "gen:" + table
}
