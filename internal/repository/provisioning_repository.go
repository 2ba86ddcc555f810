package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// DefaultSentinelTable 仪表盘已初始化标记表
const DefaultSentinelTable = "dashboard_provisioning"

// ProvisioningRecord 一次仪表盘初始化的记录
type ProvisioningRecord struct {
	RunID         string
	ProvisionedAt time.Time
	CardsCreated  int
	CardsFailed   int
}

// ProvisioningRepository 仪表盘初始化标记仓库
// 标记表存在即视为已初始化，后续运行跳过全部创建步骤
type ProvisioningRepository struct {
	db     *sql.DB
	schema string
	table  string
	logger *zap.Logger
}

// NewProvisioningRepository 创建初始化标记仓库
func NewProvisioningRepository(db *sql.DB, table string, logger *zap.Logger) *ProvisioningRepository {
	if table == "" {
		table = DefaultSentinelTable
	}
	return &ProvisioningRepository{
		db:     db,
		schema: DefaultSchema,
		table:  table,
		logger: logger,
	}
}

// IsProvisioned 标记表是否存在
func (r *ProvisioningRepository) IsProvisioned(ctx context.Context) (bool, error) {
	return tableExists(ctx, r.db, r.schema, r.table)
}

// MarkProvisioned 创建标记表并写入本次初始化记录
func (r *ProvisioningRepository) MarkProvisioned(ctx context.Context, rec ProvisioningRecord) error {
	qualified := pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id         text PRIMARY KEY,
			provisioned_at timestamp with time zone NOT NULL,
			cards_created  integer NOT NULL,
			cards_failed   integer NOT NULL
		)
	`, qualified)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create sentinel table: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (run_id, provisioned_at, cards_created, cards_failed)
		VALUES ($1, $2, $3, $4)
	`, qualified)
	if _, err := tx.ExecContext(ctx, insert, rec.RunID, rec.ProvisionedAt.UTC(), rec.CardsCreated, rec.CardsFailed); err != nil {
		return fmt.Errorf("failed to insert sentinel record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sentinel record: %w", err)
	}

	r.logger.Info("Marked dashboards as provisioned",
		zap.String("run_id", rec.RunID),
		zap.Int("cards_created", rec.CardsCreated),
		zap.Int("cards_failed", rec.CardsFailed),
	)
	return nil
}
