package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBucket 未知的分配类别
var ErrUnknownBucket = errors.New("unknown bucket")

// Bucket 代币分配类别，对应铸币合约中的 category 编号
type Bucket uint8

// BucketSetVersion 类别集合版本，新增类别时递增
const BucketSetVersion = 2

const (
	BucketTeam       Bucket = 0 // 团队（旧表格中称为 Founders）
	BucketSupporters Bucket = 1 // 支持者
	BucketCreators   Bucket = 2 // 创作者
	BucketBounties   Bucket = 3 // 赏金
	BucketSeedSale   Bucket = 4 // 种子轮
	BucketMainSale   Bucket = 5 // 主销售
)

var bucketLabels = map[Bucket]string{
	BucketTeam:       "Team",
	BucketSupporters: "Supporters",
	BucketCreators:   "Creators",
	BucketBounties:   "Bounties",
	BucketSeedSale:   "SeedSale",
	BucketMainSale:   "MainSale",
}

// bucketNames 归一化名称 -> 类别
var bucketNames = map[string]Bucket{
	"team":       BucketTeam,
	"founders":   BucketTeam,
	"supporters": BucketSupporters,
	"creators":   BucketCreators,
	"bounties":   BucketBounties,
	"seedsale":   BucketSeedSale,
	"mainsale":   BucketMainSale,
}

// Buckets 返回全部类别，按编号升序
func Buckets() []Bucket {
	return []Bucket{
		BucketTeam,
		BucketSupporters,
		BucketCreators,
		BucketBounties,
		BucketSeedSale,
		BucketMainSale,
	}
}

// ParseBucket 将表格中的类别名称解析为类别编号
func ParseBucket(label string) (Bucket, error) {
	key := normalizeBucketLabel(label)
	bucket, ok := bucketNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBucket, label)
	}
	return bucket, nil
}

// normalizeBucketLabel 去除首尾空白、分隔符并统一小写
func normalizeBucketLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(label) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Valid 检查类别是否在封闭集合内
func (b Bucket) Valid() bool {
	_, ok := bucketLabels[b]
	return ok
}

// String 返回类别展示名称
func (b Bucket) String() string {
	if label, ok := bucketLabels[b]; ok {
		return label
	}
	return fmt.Sprintf("Bucket(%d)", uint8(b))
}
