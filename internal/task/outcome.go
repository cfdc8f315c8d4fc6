package task

import (
	"github.com/Viewly/token-contracts/internal/model"
)

// Outcome 单条记录在本次运行中的结果
type Outcome string

const (
	OutcomeSubmitted    Outcome = "submitted"     // 已提交
	OutcomeRejected     Outcome = "rejected"      // 节点拒绝或参数无法构造
	OutcomeConfirmed    Outcome = "confirmed"     // 已确认成功
	OutcomePending      Outcome = "pending"       // 尚未打包或确认数不足
	OutcomeUnknown      Outcome = "unknown"       // 节点不认识该交易，保持待确认
	OutcomeLookupFailed Outcome = "lookup-failed" // 查询失败，本次跳过
	OutcomeRetry        Outcome = "failed-retry"  // 上链失败，已重置为待提交
	OutcomeFailed       Outcome = "failed"        // 上链失败，保留审计
	OutcomeStoreError   Outcome = "store-error"   // 写入账本失败
)

// RecordResult 单条记录的处理结果
type RecordResult struct {
	RecordId  int64
	Name      string
	Recipient string
	Amount    string
	Bucket    model.Bucket
	TxHash    string
	Outcome   Outcome
	Err       error
}

func newResult(record model.PayoutRecord) RecordResult {
	return RecordResult{
		RecordId:  record.Id,
		Name:      record.Name,
		Recipient: record.Recipient,
		Amount:    record.Amount.String(),
		Bucket:    record.Bucket,
		TxHash:    record.TxHash(),
	}
}

// Summary 一次运行的汇总
type Summary struct {
	RunId   string
	Job     string
	Results []RecordResult
}

// Count 统计某种结果的记录数
func (s *Summary) Count(outcome Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Counts 按结果汇总
func (s *Summary) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, r := range s.Results {
		counts[r.Outcome]++
	}
	return counts
}
