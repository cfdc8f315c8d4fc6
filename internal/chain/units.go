package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrFractionalUnits 数量小于代币最小单位
var ErrFractionalUnits = errors.New("amount has more decimal places than the token supports")

// ToBaseUnits 整币数量换算为最小单位整数，全程使用十进制运算
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount.String())
	}
	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrFractionalUnits, amount.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits 最小单位整数换算为整币数量
func FromBaseUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
