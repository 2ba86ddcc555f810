package metabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrFieldNotFound 表中没有该字段
var ErrFieldNotFound = errors.New("field not found")

// DefaultFieldCacheTTL 字段元数据缓存时长
const DefaultFieldCacheTTL = 10 * time.Minute

// MetadataSource 表元数据来源（*Client 实现）
type MetadataSource interface {
	TableMetadata(ctx context.Context, tableID int) (*TableMetadata, error)
}

// FieldResolver 按表 + 字段名查找字段 ID / 显示名 / 基础类型
// 表元数据整体缓存在 KVStore 中，同一张表的多个字段只请求一次
type FieldResolver struct {
	source MetadataSource
	cache  KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewFieldResolver 创建字段解析器
func NewFieldResolver(source MetadataSource, cache KVStore, ttl time.Duration, logger *zap.Logger) *FieldResolver {
	if cache == nil {
		cache = NewMemoryKVStore()
	}
	if ttl <= 0 {
		ttl = DefaultFieldCacheTTL
	}
	return &FieldResolver{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve 查找字段
func (r *FieldResolver) Resolve(ctx context.Context, tableID int, fieldName string) (*Field, error) {
	meta, err := r.metadata(ctx, tableID)
	if err != nil {
		return nil, err
	}
	for i := range meta.Fields {
		if meta.Fields[i].Name == fieldName {
			f := meta.Fields[i]
			return &f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, meta.Name, fieldName)
}

// ResolveAll 按顺序查找多个字段
func (r *FieldResolver) ResolveAll(ctx context.Context, tableID int, fieldNames []string) ([]Field, error) {
	fields := make([]Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		f, err := r.Resolve(ctx, tableID, name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, nil
}

func (r *FieldResolver) metadata(ctx context.Context, tableID int) (*TableMetadata, error) {
	key := cacheKey(tableID)

	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var meta TableMetadata
		if jsonErr := json.Unmarshal([]byte(cached), &meta); jsonErr == nil {
			return &meta, nil
		}
		r.logger.Warn("Discarding corrupt field cache entry", zap.String("key", key))
	case !errors.Is(err, ErrCacheMiss):
		// 缓存故障不影响解析，直接回源
		r.logger.Warn("Field cache unavailable", zap.String("key", key), zap.Error(err))
	}

	meta, err := r.source.TableMetadata(ctx, tableID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(meta); err == nil {
		if err := r.cache.Set(ctx, key, string(data), r.ttl); err != nil {
			r.logger.Warn("Failed to cache table metadata", zap.String("key", key), zap.Error(err))
		}
	}
	r.logger.Debug("Fetched table metadata", zap.Int("table_id", tableID), zap.Int("fields", len(meta.Fields)))
	return meta, nil
}

func cacheKey(tableID int) string {
	return fmt.Sprintf("health-etl:metabase:table:%d:metadata", tableID)
}
