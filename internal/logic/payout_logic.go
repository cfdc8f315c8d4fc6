package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/Viewly/token-contracts/internal/sheet"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ImportOptions 导入参数
type ImportOptions struct {
	SheetPath string
	Format    sheet.Format
	Store     config.DatabaseConfig
	Force     bool             // 不询问直接覆盖
	Confirmer prompt.Confirmer // 账本已存在时询问是否覆盖
}

// ImportSheet 校验表格后写入新账本，任一行不合法时账本保持不变
func ImportSheet(ctx context.Context, opts ImportOptions) (int, error) {
	records, err := sheet.Load(opts.SheetPath, opts.Format)
	if err != nil {
		return 0, err
	}

	exists, err := repository.Exists(opts.Store)
	if err != nil {
		return 0, err
	}

	overwrite := false
	if exists {
		overwrite = opts.Force
		if !overwrite && opts.Confirmer != nil {
			question := fmt.Sprintf("Payout store %s already exists. Overwrite it?", repository.Location(opts.Store))
			overwrite, err = opts.Confirmer.Confirm(ctx, question)
			if err != nil {
				return 0, err
			}
		}
		if !overwrite {
			return 0, fmt.Errorf("%w: %s", repository.ErrStoreExists, repository.Location(opts.Store))
		}
		logger.Warn("Overwriting payout store %s", repository.Location(opts.Store))
	}

	repo, err := repository.Initialize(opts.Store, overwrite)
	if err != nil {
		return 0, err
	}

	if err := repo.BulkInsert(ctx, records); err != nil {
		_ = repo.Close()
		if rmErr := repository.Remove(opts.Store); rmErr != nil {
			logger.Error("Failed to remove incomplete payout store %s: %v", repository.Location(opts.Store), rmErr)
		}
		return 0, err
	}
	if err := repo.Close(); err != nil {
		return 0, err
	}

	logger.Info("Imported %d payout records from %s into %s", len(records), opts.SheetPath, repository.Location(opts.Store))
	return len(records), nil
}

// PayoutLogic 账本查询业务逻辑
type PayoutLogic struct {
	repo *repository.PayoutRepository
}

// NewPayoutLogic 创建账本查询业务逻辑
func NewPayoutLogic(repo *repository.PayoutRepository) *PayoutLogic {
	return &PayoutLogic{repo: repo}
}

// ListFilter 列表过滤条件，空值表示不过滤
type ListFilter struct {
	Status string
	Bucket string
}

// Scopes 将过滤条件转换为查询条件
func (f ListFilter) Scopes() ([]func(*gorm.DB) *gorm.DB, error) {
	var scopes []func(*gorm.DB) *gorm.DB

	if status := strings.ToLower(strings.TrimSpace(f.Status)); status != "" {
		scope, err := repository.WithStatus(model.PayoutStatus(status))
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}

	if f.Bucket != "" {
		bucket, err := model.ParseBucket(f.Bucket)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, repository.InBucket(bucket))
	}
	return scopes, nil
}

// GetPayout 获取单条记录
func (l *PayoutLogic) GetPayout(ctx context.Context, id int64) (*model.PayoutRecord, error) {
	return l.repo.Get(ctx, id)
}

// ListPayouts 分页查询记录
func (l *PayoutLogic) ListPayouts(ctx context.Context, filter ListFilter, page, pageSize int) ([]model.PayoutRecord, int64, error) {
	scopes, err := filter.Scopes()
	if err != nil {
		return nil, 0, err
	}
	return l.repo.List(ctx, page, pageSize, scopes...)
}

// Group 一组记录的数量与总额
type Group struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func (g *Group) add(amount decimal.Decimal) {
	g.Count++
	g.Amount = g.Amount.Add(amount)
}

// Stats 账本统计
type Stats struct {
	Total            Group                        `json:"total"`
	ByStatus         map[model.PayoutStatus]Group `json:"by_status"`
	ByBucket         map[string]Group             `json:"by_bucket"`
	BucketSetVersion int                          `json:"bucket_set_version"` // ByBucket 标签所属的类别集合
}

// GetStats 按状态与类别统计，金额在内存中按十进制累加
func (l *PayoutLogic) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus: map[model.PayoutStatus]Group{
			model.PayoutStatusPending:   {},
			model.PayoutStatusSubmitted: {},
			model.PayoutStatusConfirmed: {},
		},
		ByBucket:         make(map[string]Group),
		BucketSetVersion: model.BucketSetVersion,
	}

	cursor := l.repo.Query()
	for cursor.Next(ctx) {
		record := cursor.Record()
		amount := record.Amount.Decimal

		stats.Total.add(amount)

		status := stats.ByStatus[record.Status()]
		status.add(amount)
		stats.ByStatus[record.Status()] = status

		bucket := stats.ByBucket[record.Bucket.String()]
		bucket.add(amount)
		stats.ByBucket[record.Bucket.String()] = bucket
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("获取账本统计失败: %w", err)
	}
	return stats, nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrRecordNotFound)
}
