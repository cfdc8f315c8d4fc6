package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/database"
	"github.com/Viewly/token-contracts/internal/model"
	"gorm.io/gorm"
)

var (
	ErrStoreExists    = errors.New("payout store already exists")
	ErrStoreNotFound  = errors.New("payout store not found")
	ErrStoreNotEmpty  = errors.New("payout store already holds records")
	ErrRecordNotFound = errors.New("payout record not found")
	ErrStatusConflict = errors.New("payout record status changed")
)

// insertBatchSize 批量插入每批条数
const insertBatchSize = 200

// PayoutRepository 发放账本，一张 txs 表
type PayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 使用已打开的连接创建账本
func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func isSqlite(cfg config.DatabaseConfig) bool {
	return cfg.Driver == "sqlite" || cfg.Driver == ""
}

// Location 账本位置描述，用于提示与日志
func Location(cfg config.DatabaseConfig) string {
	if isSqlite(cfg) {
		return cfg.Path
	}
	return fmt.Sprintf("%s://%s:%d/%s", cfg.Driver, cfg.Host, cfg.Port, cfg.DBName)
}

// Exists 判断账本是否已存在
func Exists(cfg config.DatabaseConfig) (bool, error) {
	if isSqlite(cfg) {
		return database.FileExists(cfg.Path)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return false, err
	}
	defer database.Close(db)

	return db.Migrator().HasTable(&model.PayoutRecord{}), nil
}

// Initialize 创建新账本，已存在且未确认覆盖时返回 ErrStoreExists
func Initialize(cfg config.DatabaseConfig, overwrite bool) (*PayoutRepository, error) {
	exists, err := Exists(cfg)
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, Location(cfg))
	}

	if exists && isSqlite(cfg) {
		if err := removeSqliteFiles(cfg.Path); err != nil {
			return nil, err
		}
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	if exists && !isSqlite(cfg) {
		if err := db.Migrator().DropTable(&model.PayoutRecord{}); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to drop existing payout table: %w", err)
		}
	}

	// 自动迁移
	if err := db.AutoMigrate(&model.PayoutRecord{}); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return NewPayoutRepository(db), nil
}

// Open 打开已有账本
func Open(cfg config.DatabaseConfig) (*PayoutRepository, error) {
	if isSqlite(cfg) {
		exists, err := database.FileExists(cfg.Path)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, cfg.Path)
		}
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if !db.Migrator().HasTable(&model.PayoutRecord{}) {
		database.Close(db)
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, Location(cfg))
	}

	return NewPayoutRepository(db), nil
}

// Remove 删除账本，导入失败时用于回收新建的账本
func Remove(cfg config.DatabaseConfig) error {
	if isSqlite(cfg) {
		return removeSqliteFiles(cfg.Path)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	return db.Migrator().DropTable(&model.PayoutRecord{})
}

func removeSqliteFiles(path string) error {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// Close 关闭账本
func (r *PayoutRepository) Close() error {
	return database.Close(r.db)
}

// DB 返回底层连接
func (r *PayoutRepository) DB() *gorm.DB {
	return r.db
}

// BulkInsert 在一个事务中写入整批记录，任一记录不合法则整批回滚
func (r *PayoutRepository) BulkInsert(ctx context.Context, records []model.PayoutRecord) error {
	for i := range records {
		if records[i].Id != 0 || records[i].Txid != nil || records[i].Success {
			return fmt.Errorf("record %d: %w: imported records must be pending", i+1, model.ErrInvalidStatus)
		}
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.PayoutRecord{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count payout records: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %d records", ErrStoreNotEmpty, count)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&records, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert payout records: %w", err)
		}
		return nil
	})
}

// Get 按ID获取记录
func (r *PayoutRepository) Get(ctx context.Context, id int64) (*model.PayoutRecord, error) {
	var record model.PayoutRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to get payout record %d: %w", id, err)
	}
	return &record, nil
}

// Count 统计满足条件的记录数
func (r *PayoutRepository) Count(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.PayoutRecord{}).Scopes(scopes...).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count payout records: %w", err)
	}
	return total, nil
}

// List 分页查询，按ID升序
func (r *PayoutRepository) List(ctx context.Context, page, pageSize int, scopes ...func(*gorm.DB) *gorm.DB) ([]model.PayoutRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	total, err := r.Count(ctx, scopes...)
	if err != nil {
		return nil, 0, err
	}

	var records []model.PayoutRecord
	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Scopes(scopes...).
		Order("id ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payout records: %w", err)
	}

	return records, total, nil
}

// All 读取满足条件的全部记录
func (r *PayoutRepository) All(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) ([]model.PayoutRecord, error) {
	var records []model.PayoutRecord
	cursor := r.Query(scopes...)
	for cursor.Next(ctx) {
		records = append(records, cursor.Record())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStatus 更新单条记录的 txid/success，更新后必须仍满足记录不变式
// 已确认的记录不再变化，重复写入相同状态视为成功
func (r *PayoutRepository) UpdateStatus(ctx context.Context, id int64, txid *string, success bool) error {
	if txid == nil && success {
		return fmt.Errorf("%w: success without txid", model.ErrInvalidStatus)
	}

	result := r.db.WithContext(ctx).Model(&model.PayoutRecord{}).
		Where("id = ? AND success = ?", id, false).
		Updates(map[string]interface{}{
			"txid":    txid,
			"success": success,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payout record %d: %w", id, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	record, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !record.Success {
		// mysql 对未变化的行返回0
		return nil
	}
	if success && record.TxHash() == *txid {
		return nil
	}
	return fmt.Errorf("%w: id %d is already confirmed", ErrStatusConflict, id)
}

// MarkSubmitted 记录提交得到的交易哈希，仅对待提交记录生效
func (r *PayoutRepository) MarkSubmitted(ctx context.Context, id int64, txid string) error {
	return r.transition(ctx, id, Unsubmitted, map[string]interface{}{
		"txid": txid,
	})
}

// MarkConfirmed 标记交易已确认成功，仅对已提交记录生效
func (r *PayoutRepository) MarkConfirmed(ctx context.Context, id int64) error {
	return r.transition(ctx, id, AwaitingConfirmation, map[string]interface{}{
		"success": true,
	})
}

// ResetForRetry 清除失败交易的 txid，使记录可重新提交
func (r *PayoutRepository) ResetForRetry(ctx context.Context, id int64) error {
	return r.transition(ctx, id, AwaitingConfirmation, map[string]interface{}{
		"txid": nil,
	})
}

// transition 条件更新，状态不符时区分记录不存在与状态冲突
func (r *PayoutRepository) transition(ctx context.Context, id int64, from func(*gorm.DB) *gorm.DB, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.PayoutRecord{}).
		Scopes(from).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update payout record %d: %w", id, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: id %d", ErrStatusConflict, id)
}
