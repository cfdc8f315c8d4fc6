package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Outcome 回执分类结果
type Outcome int

const (
	OutcomePending  Outcome = iota // 尚未打包
	OutcomeSuccess                 // 执行成功
	OutcomeOutOfGas                // 耗尽 gas
	OutcomeReverted                // 合约回滚
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeOutOfGas:
		return "out-of-gas"
	case OutcomeReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Classify 对回执分类，失败且用尽 gas 上限视为 out-of-gas
func Classify(r *Receipt) Outcome {
	if r == nil || r.BlockNumber == nil {
		return OutcomePending
	}
	if r.Status == types.ReceiptStatusSuccessful {
		return OutcomeSuccess
	}
	if r.GasUsed == r.GasLimit {
		return OutcomeOutOfGas
	}
	return OutcomeReverted
}

// IsConfirmed 交易所在区块之后已有足够的确认数
func IsConfirmed(r *Receipt, latestBlock, confirmations uint64) bool {
	if r == nil || r.BlockNumber == nil {
		return false
	}
	required := new(big.Int).Add(r.BlockNumber, new(big.Int).SetUint64(confirmations))
	return required.Cmp(new(big.Int).SetUint64(latestBlock)) <= 0
}
