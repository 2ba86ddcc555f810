package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"health-etl/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// 表中行号列：0 起始的行下标
const indexColumn = "id"

// DefaultSchema 数据仓库默认 schema
const DefaultSchema = "public"

// ErrTableNotFound 回读的表不存在
var ErrTableNotFound = errors.New("table not found")

// TableRepository 数据仓库表仓库（整表替换写入 / 回读）
type TableRepository struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// NewTableRepository 创建表仓库
func NewTableRepository(db *sql.DB, logger *zap.Logger) *TableRepository {
	return &TableRepository{
		db:     db,
		schema: DefaultSchema,
		logger: logger,
	}
}

// ReplaceTable 用 table 的内容整表替换同名表
//
// 在一个事务内：DROP TABLE IF EXISTS → CREATE TABLE → COPY 批量写入 → COMMIT。
// 任一步失败则回滚，原表保持不变。
func (r *TableRepository) ReplaceTable(ctx context.Context, table *models.Table) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("invalid table: %w", err)
	}

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qualified := r.qualify(table.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(qualified, table.Columns)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}

	columns := append([]string{indexColumn}, table.ColumnNames()...)
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(r.schema, table.Name, columns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy into %s: %w", table.Name, err)
	}

	args := make([]any, len(columns))
	for i, row := range table.Rows {
		args[0] = int64(i)
		copy(args[1:], row)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy row %d into %s: %w", i, table.Name, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy into %s: %w", table.Name, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy into %s: %w", table.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", table.Name, err)
	}

	r.logger.Info("Replaced table",
		zap.String("table", table.Name),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Columns)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// ReadTable 按行号顺序回读整表（不含行号列）
// 列类型由首个非空值推断，全为空的列视为文本
func (r *TableRepository) ReadTable(ctx context.Context, name string) (*models.Table, error) {
	exists, err := r.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", r.qualify(name), pq.QuoteIdentifier(indexColumn))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	skip := -1
	kinds := make([]models.ColumnKind, len(names))
	known := make([]bool, len(names))
	for i, n := range names {
		if n == indexColumn {
			skip = i
		}
	}

	table := &models.Table{Name: name}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}

		row := make([]any, 0, len(names))
		for i, v := range values {
			if i == skip {
				continue
			}
			v = normalizeValue(v)
			if !known[i] && v != nil {
				kinds[i], known[i] = kindFromValue(v), true
			}
			row = append(row, v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate table %s: %w", name, err)
	}

	for i, n := range names {
		if i == skip {
			continue
		}
		table.Columns = append(table.Columns, models.Column{Name: n, Kind: kinds[i]})
	}

	r.logger.Debug("Read table", zap.String("table", name), zap.Int("rows", len(table.Rows)))
	return table, nil
}

// TableExists 查询 information_schema 判断表是否存在
func (r *TableRepository) TableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, r.db, r.schema, name)
}

func (r *TableRepository) qualify(name string) string {
	return pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(name)
}

func tableExists(ctx context.Context, db *sql.DB, schema, name string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`
	var exists bool
	if err := db.QueryRowContext(ctx, query, schema, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

func createTableSQL(qualified string, columns []models.Column) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, pq.QuoteIdentifier(indexColumn)+" bigint PRIMARY KEY")
	for _, c := range columns {
		defs = append(defs, pq.QuoteIdentifier(c.Name)+" "+sqlType(c.Kind))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(defs, ", "))
}

func sqlType(kind models.ColumnKind) string {
	switch kind {
	case models.KindFloat:
		return "double precision"
	case models.KindInt:
		return "bigint"
	case models.KindTimestamp:
		return "timestamp with time zone"
	default:
		return "text"
	}
}

func kindFromValue(v any) models.ColumnKind {
	switch v.(type) {
	case float64:
		return models.KindFloat
	case int64:
		return models.KindInt
	case time.Time:
		return models.KindTimestamp
	default:
		return models.KindText
	}
}

// normalizeValue 驱动返回的 []byte 转为字符串，时间统一为 UTC
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	case float32:
		return float64(t)
	case int32:
		return int64(t)
	}
	return v
}
