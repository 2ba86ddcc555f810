package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"health-etl/internal/metabase"
	"health-etl/internal/observability"
	"health-etl/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoCardsCreated 所有卡片都创建失败
var ErrNoCardsCreated = errors.New("no dashboard cards were created")

// API 仪表盘初始化用到的 BI 接口（*metabase.Client 实现）
type API interface {
	WaitUntilReady(ctx context.Context, attempts int, interval time.Duration) error
	Login(ctx context.Context, email, password string) error
	ListCollections(ctx context.Context) ([]metabase.Collection, error)
	CreateCollection(ctx context.Context, name string, parentID *int) (*metabase.Collection, error)
	ListDatabases(ctx context.Context) ([]metabase.Database, error)
	ListTables(ctx context.Context) ([]metabase.Table, error)
	CreateCard(ctx context.Context, card *metabase.Card) (*metabase.Card, error)
}

// FieldLookup 字段元数据解析（*metabase.FieldResolver 实现）
type FieldLookup interface {
	ResolveAll(ctx context.Context, tableID int, fieldNames []string) ([]metabase.Field, error)
}

// Sentinel 初始化标记（*repository.ProvisioningRepository 实现）
type Sentinel interface {
	IsProvisioned(ctx context.Context) (bool, error)
	MarkProvisioned(ctx context.Context, rec repository.ProvisioningRecord) error
}

// Options 初始化参数
type Options struct {
	Email        string
	Password     string
	DatabaseName string // 为空时使用第一个 postgres 数据库
	WaitAttempts int    // <= 0 时不等待
	WaitInterval time.Duration
}

// CardError 单张卡片的失败原因
type CardError struct {
	Question string
	Err      error
}

func (e CardError) Error() string {
	return fmt.Sprintf("%s: %v", e.Question, e.Err)
}

// Report 初始化结果
type Report struct {
	RunID              string
	Skipped            bool // 已初始化过，未做任何创建
	CollectionsCreated int
	CardsCreated       int
	CardsFailed        int
	Errors             []CardError
}

// Provisioner 仪表盘初始化流程
type Provisioner struct {
	api      API
	fields   FieldLookup
	sentinel Sentinel
	catalog  *Catalog
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewProvisioner 创建初始化流程
func NewProvisioner(api API, fields FieldLookup, sentinel Sentinel, catalog *Catalog, metrics *observability.Metrics, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		api:      api,
		fields:   fields,
		sentinel: sentinel,
		catalog:  catalog,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Provision 执行初始化
//
// 顺序：等待服务就绪 → 登录 → 检查标记 → 确保集合存在 → 定位数据库与表 → 逐个创建卡片 → 写入标记。
// 单张卡片失败只记录，不影响后续卡片；等待、登录、标记检查和数据库定位失败直接返回错误。
func (p *Provisioner) Provision(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	logger := p.logger.With(zap.String("run_id", report.RunID))

	if opts.WaitAttempts > 0 {
		if err := p.api.WaitUntilReady(ctx, opts.WaitAttempts, opts.WaitInterval); err != nil {
			return report, err
		}
	}
	if err := p.api.Login(ctx, opts.Email, opts.Password); err != nil {
		return report, err
	}

	provisioned, err := p.sentinel.IsProvisioned(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to check provisioning sentinel: %w", err)
	}
	if provisioned {
		logger.Info("Dashboards already provisioned, skipping")
		report.Skipped = true
		return report, nil
	}

	collections, err := p.ensureCollections(ctx, report, logger)
	if err != nil {
		return report, err
	}

	database, err := p.findDatabase(ctx, opts.DatabaseName)
	if err != nil {
		return report, err
	}
	tables, err := p.tableIDs(ctx, database.ID)
	if err != nil {
		return report, err
	}

	for _, q := range p.catalog.Questions {
		card, err := p.createCard(ctx, q, database.ID, collections, tables)
		if err != nil {
			report.CardsFailed++
			report.Errors = append(report.Errors, CardError{Question: q.Name, Err: err})
			p.metrics.RecordCard(false)
			logger.Error("Could not create question", zap.String("question", q.Name), zap.Error(err))
			continue
		}
		report.CardsCreated++
		p.metrics.RecordCard(true)
		logger.Info("Created question", zap.String("question", q.Name), zap.Int("card_id", card.ID))
	}

	if report.CardsCreated == 0 {
		return report, ErrNoCardsCreated
	}

	if err := p.sentinel.MarkProvisioned(ctx, repository.ProvisioningRecord{
		RunID:         report.RunID,
		ProvisionedAt: p.now(),
		CardsCreated:  report.CardsCreated,
		CardsFailed:   report.CardsFailed,
	}); err != nil {
		return report, fmt.Errorf("failed to mark dashboards as provisioned: %w", err)
	}

	logger.Info("Provisioned dashboards",
		zap.Int("collections_created", report.CollectionsCreated),
		zap.Int("cards_created", report.CardsCreated),
		zap.Int("cards_failed", report.CardsFailed),
	)
	return report, nil
}

// ensureCollections 按名称复用已有集合，缺失的在根集合下创建
// 创建失败的集合不在结果中，其下的卡片随后单独失败
func (p *Provisioner) ensureCollections(ctx context.Context, report *Report, logger *zap.Logger) (map[string]int, error) {
	existing, err := p.api.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int)
	for i := range existing {
		c := &existing[i]
		if c.Archived {
			continue
		}
		if id, ok := c.IntID(); ok {
			if _, dup := ids[c.Name]; !dup {
				ids[c.Name] = id
			}
		}
	}

	for _, spec := range p.catalog.Collections {
		if _, ok := ids[spec.Name]; ok {
			logger.Debug("Reusing collection", zap.String("collection", spec.Name))
			continue
		}
		created, err := p.api.CreateCollection(ctx, spec.Name, nil)
		if err != nil {
			logger.Error("Could not create collection", zap.String("collection", spec.Name), zap.Error(err))
			continue
		}
		id, ok := created.IntID()
		if !ok {
			logger.Error("Created collection has no numeric id", zap.String("collection", spec.Name))
			continue
		}
		ids[spec.Name] = id
		report.CollectionsCreated++
		logger.Info("Created collection", zap.String("collection", spec.Name), zap.Int("collection_id", id))
	}
	return ids, nil
}

func (p *Provisioner) findDatabase(ctx context.Context, name string) (*metabase.Database, error) {
	databases, err := p.api.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range databases {
		db := &databases[i]
		if name != "" && db.Name == name {
			return db, nil
		}
		if name == "" && db.Engine == "postgres" {
			return db, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("no postgres database registered in metabase")
	}
	return nil, fmt.Errorf("database %q is not registered in metabase", name)
}

func (p *Provisioner) tableIDs(ctx context.Context, databaseID int) (map[string]int, error) {
	tables, err := p.api.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int)
	for _, t := range tables {
		if t.DBID != databaseID {
			continue
		}
		if t.Schema != "" && t.Schema != repository.DefaultSchema {
			continue
		}
		ids[t.Name] = t.ID
	}
	return ids, nil
}

func (p *Provisioner) createCard(ctx context.Context, q Question, databaseID int, collections, tables map[string]int) (*metabase.Card, error) {
	collectionID, ok := collections[q.Collection]
	if !ok {
		return nil, fmt.Errorf("collection %q is unavailable", q.Collection)
	}
	tableID, ok := tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("table %q has not been synced to metabase", q.Table)
	}
	fields, err := p.fields.ResolveAll(ctx, tableID, q.Filters)
	if err != nil {
		return nil, err
	}
	return p.api.CreateCard(ctx, BuildCard(q, databaseID, &collectionID, tableID, fields))
}
