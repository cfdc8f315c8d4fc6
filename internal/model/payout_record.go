package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAddress = errors.New("invalid recipient address")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidStatus  = errors.New("invalid payout status")
)

var addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// PayoutStatus 发放记录状态，由 txid 与 success 两列推导
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"   // 待提交
	PayoutStatusSubmitted PayoutStatus = "submitted" // 已提交，待确认
	PayoutStatusConfirmed PayoutStatus = "confirmed" // 已确认成功
)

// PayoutRecord 代币发放记录
type PayoutRecord struct {
	Id        int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string  `json:"name"`
	Recipient string  `json:"recipient" gorm:"not null"`
	Amount    Amount  `json:"amount" gorm:"not null"`
	Bucket    Bucket  `json:"bucket" gorm:"not null"`
	Txid      *string `json:"txid"`
	Success   bool    `json:"success" gorm:"not null;default:false"`
}

// TableName 自定义表名
func (PayoutRecord) TableName() string {
	return "txs"
}

// NewPayoutRecord 创建发放记录，地址统一为校验和格式
func NewPayoutRecord(name, recipient string, amount decimal.Decimal, bucket Bucket) (PayoutRecord, error) {
	record := PayoutRecord{
		Name:      name,
		Recipient: recipient,
		Amount:    NewAmount(amount),
		Bucket:    bucket,
	}
	if err := record.Validate(); err != nil {
		return PayoutRecord{}, err
	}
	record.Recipient = common.HexToAddress(recipient).Hex()
	return record, nil
}

// IsValidAddress 验证以太坊地址格式，大小写混合时要求满足 EIP-55 校验和
func IsValidAddress(address string) bool {
	if !addressRegex.MatchString(address) {
		return false
	}
	hexPart := address[2:]
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return true
	}
	return common.HexToAddress(address).Hex() == address
}

// Validate 检查记录不变式
func (r PayoutRecord) Validate() error {
	if !IsValidAddress(r.Recipient) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, r.Recipient)
	}
	if err := CheckAmount(r.Amount.Decimal); err != nil {
		return err
	}
	if !r.Bucket.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownBucket, uint8(r.Bucket))
	}
	if r.Txid == nil && r.Success {
		return fmt.Errorf("%w: success without txid", ErrInvalidStatus)
	}
	return nil
}

// Status 返回推导出的三态状态
func (r PayoutRecord) Status() PayoutStatus {
	switch {
	case r.Success:
		return PayoutStatusConfirmed
	case r.Txid != nil:
		return PayoutStatusSubmitted
	default:
		return PayoutStatusPending
	}
}

// TxHash 返回交易哈希，未提交时为空串
func (r PayoutRecord) TxHash() string {
	if r.Txid == nil {
		return ""
	}
	return *r.Txid
}
