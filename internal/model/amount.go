package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	MaxAmountScale         = 18 // decimal(36,18) 的小数位
	MaxAmountIntegerDigits = 60 // 18位精度下 uint256 最多容纳的整数位
)

var bigTen = big.NewInt(10)

// Amount 以整币为单位的发放数量
// sqlite 的 NUMERIC 亲和性只保留15位有效数字，因此在 sqlite 中按文本存储
type Amount struct {
	decimal.Decimal
}

// NewAmount 包装 decimal 数量
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// GormDBDataType 按方言选择列类型
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "text"
	default:
		return "decimal(36,18)"
	}
}

// CheckAmount 检查数量的位数，只看系数与指数，不展开数值
// 超出范围的数量在任何驱动下都无法无损存储
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if d.IsZero() {
		return nil
	}

	coef := new(big.Int).Abs(d.Coefficient())
	exp := int64(d.Exponent())

	// 去掉小数部分末尾的0
	rem := new(big.Int)
	for exp < 0 {
		q, r := new(big.Int).QuoRem(coef, bigTen, rem)
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}

	if exp < -MaxAmountScale {
		return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, MaxAmountScale)
	}
	if digits := int64(len(coef.String())) + exp; digits > MaxAmountIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, MaxAmountIntegerDigits)
	}
	return nil
}
