package task

import (
	"fmt"
)

// SubmissionError 节点拒绝了交易，记录保持待提交
type SubmissionError struct {
	RecordId int64
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("record %d: submission failed: %v", e.RecordId, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// LookupError 无法查询交易状态，本次跳过
type LookupError struct {
	RecordId int64
	TxHash   string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("record %d: lookup of %s failed: %v", e.RecordId, e.TxHash, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// FailureKind 已上链失败的类型
type FailureKind int

const (
	FailureOutOfGas FailureKind = iota + 1
	FailureReverted
)

func (k FailureKind) String() string {
	switch k {
	case FailureOutOfGas:
		return "out of gas"
	case FailureReverted:
		return "reverted"
	default:
		return "unknown failure"
	}
}

// ConfirmedFailure 交易已打包但执行失败，只有操作员同意才会重试
type ConfirmedFailure struct {
	RecordId int64
	TxHash   string
	Kind     FailureKind
	GasUsed  uint64
	GasLimit uint64
}

func (e *ConfirmedFailure) Error() string {
	return fmt.Sprintf("record %d: transaction %s %s (gas used %d of %d)", e.RecordId, e.TxHash, e.Kind, e.GasUsed, e.GasLimit)
}
