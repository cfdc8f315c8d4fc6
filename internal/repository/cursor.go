package repository

import (
	"context"
	"fmt"

	"github.com/Viewly/token-contracts/internal/model"
	"gorm.io/gorm"
)

// defaultPageSize 游标每次读取的记录数
const defaultPageSize = 100

// Unsubmitted 待提交: txid 为空且未成功
func Unsubmitted(db *gorm.DB) *gorm.DB {
	return db.Where("txid IS NULL AND success = ?", false)
}

// AwaitingConfirmation 已提交待确认: txid 非空且未成功
func AwaitingConfirmation(db *gorm.DB) *gorm.DB {
	return db.Where("txid IS NOT NULL AND success = ?", false)
}

// Confirmed 已确认成功
func Confirmed(db *gorm.DB) *gorm.DB {
	return db.Where("success = ?", true)
}

// InBucket 按分配类别过滤
func InBucket(bucket model.Bucket) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("bucket = ?", bucket)
	}
}

// WithStatus 按推导状态过滤
func WithStatus(status model.PayoutStatus) (func(*gorm.DB) *gorm.DB, error) {
	switch status {
	case model.PayoutStatusPending:
		return Unsubmitted, nil
	case model.PayoutStatusSubmitted:
		return AwaitingConfirmation, nil
	case model.PayoutStatusConfirmed:
		return Confirmed, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
}

// Cursor 按ID升序分页读取记录的惰性游标
// 每页以上一条记录的ID为起点，迭代期间被更新的记录不会重复出现
type Cursor struct {
	db       *gorm.DB
	scopes   []func(*gorm.DB) *gorm.DB
	pageSize int

	lastID  int64
	page    []model.PayoutRecord
	pos     int
	current model.PayoutRecord
	done    bool
	err     error
}

// Query 返回满足条件的记录游标
func (r *PayoutRepository) Query(scopes ...func(*gorm.DB) *gorm.DB) *Cursor {
	return &Cursor{
		db:       r.db,
		scopes:   scopes,
		pageSize: defaultPageSize,
	}
}

// WithPageSize 设置每页条数
func (c *Cursor) WithPageSize(size int) *Cursor {
	if size > 0 {
		c.pageSize = size
	}
	return c
}

// Next 前进到下一条记录，没有更多记录或出错时返回 false
func (c *Cursor) Next(ctx context.Context) bool {
	if c.done || c.err != nil {
		return false
	}

	if c.pos >= len(c.page) {
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}

		var page []model.PayoutRecord
		if err := c.db.WithContext(ctx).
			Scopes(c.scopes...).
			Where("id > ?", c.lastID).
			Order("id ASC").
			Limit(c.pageSize).
			Find(&page).Error; err != nil {
			c.err = fmt.Errorf("failed to query payout records: %w", err)
			return false
		}
		if len(page) == 0 {
			c.done = true
			return false
		}
		c.page = page
		c.pos = 0
	}

	c.current = c.page[c.pos]
	c.pos++
	c.lastID = c.current.Id
	return true
}

// Record 当前记录
func (c *Cursor) Record() model.PayoutRecord {
	return c.current
}

// Err 迭代过程中的错误
func (c *Cursor) Err() error {
	return c.err
}

// Reset 从头重新迭代，重新读取存储中的当前状态
func (c *Cursor) Reset() {
	c.lastID = 0
	c.page = nil
	c.pos = 0
	c.current = model.PayoutRecord{}
	c.done = false
	c.err = nil
}
