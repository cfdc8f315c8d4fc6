package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMalformedTxHash 账本中的交易哈希格式不正确
var ErrMalformedTxHash = errors.New("malformed transaction hash")

// VerifyJob 查询已提交交易的回执并更新记录状态
type VerifyJob struct {
	repo          *repository.PayoutRepository
	client        chain.Client
	confirmer     prompt.Confirmer
	confirmations uint64
	metrics       *Metrics
}

// NewVerifyJob 创建核对任务
func NewVerifyJob(repo *repository.PayoutRepository, client chain.Client, confirmer prompt.Confirmer, confirmations uint64, metrics *Metrics) *VerifyJob {
	return &VerifyJob{
		repo:          repo,
		client:        client,
		confirmer:     confirmer,
		confirmations: confirmations,
		metrics:       metrics,
	}
}

// GetName 获取任务名称
func (j *VerifyJob) GetName() string {
	return "payout_verifier"
}

// Run 按ID升序核对所有待确认记录，查询失败的记录跳过
func (j *VerifyJob) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunId: uuid.NewString(), Job: j.GetName()}
	log := logger.With(zap.String("run_id", summary.RunId), zap.String("job", j.GetName()))

	log.Info("Starting verify run (confirmations %d)", j.confirmations)

	err := j.run(ctx, log, summary)
	j.metrics.observeRun(j.GetName(), err, time.Since(started).Seconds())

	counts := summary.Counts()
	log.Info("Verify run finished: %d confirmed, %d pending, %d failed, %d reset for retry, %d lookup errors",
		counts[OutcomeConfirmed], counts[OutcomePending]+counts[OutcomeUnknown],
		counts[OutcomeFailed], counts[OutcomeRetry], counts[OutcomeLookupFailed])
	return summary, err
}

func (j *VerifyJob) run(ctx context.Context, log *logger.Logger, summary *Summary) error {
	// 最新区块号每次运行只查询一次
	var latest *uint64

	cursor := j.repo.Query(repository.AwaitingConfirmation)
	for cursor.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := j.verify(ctx, log, cursor.Record(), &latest)
		summary.Results = append(summary.Results, result)
		j.metrics.observeRecord(j.GetName(), result.Outcome)
		if err != nil {
			return err
		}
	}
	return cursor.Err()
}

// verify 处理单条记录，只有账本写入失败或上下文取消时返回错误
func (j *VerifyJob) verify(ctx context.Context, log *logger.Logger, record model.PayoutRecord, latest **uint64) (RecordResult, error) {
	result := newResult(record)
	txid := record.TxHash()

	txHash, err := parseTxHash(txid)
	if err != nil {
		result.Outcome = OutcomeLookupFailed
		result.Err = &LookupError{RecordId: record.Id, TxHash: txid, Err: err}
		log.Error("Record %d: %v", record.Id, err)
		return result, nil
	}

	receipt, err := j.client.GetReceipt(ctx, txHash)
	switch {
	case err == nil:
	case errors.Is(err, chain.ErrReceiptNotFound):
		result.Outcome = OutcomePending
		log.Info("Record %d: transaction %s not mined yet", record.Id, txid)
		return result, nil
	case errors.Is(err, chain.ErrTransactionUnknown):
		result.Outcome = OutcomeUnknown
		result.Err = err
		log.Warn("Record %d: transaction %s is unknown to the node, it may have been dropped", record.Id, txid)
		return result, nil
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.Outcome = OutcomeLookupFailed
		result.Err = &LookupError{RecordId: record.Id, TxHash: txid, Err: err}
		log.Error("Record %d: failed to get receipt for %s: %v", record.Id, txid, err)
		return result, nil
	}

	switch chain.Classify(receipt) {
	case chain.OutcomePending:
		result.Outcome = OutcomePending
		return result, nil
	case chain.OutcomeSuccess:
		return j.confirm(ctx, log, record, receipt, latest, result)
	case chain.OutcomeOutOfGas:
		return j.handleFailure(ctx, log, record, receipt, FailureOutOfGas, result)
	default:
		return j.handleFailure(ctx, log, record, receipt, FailureReverted, result)
	}
}

func (j *VerifyJob) confirm(ctx context.Context, log *logger.Logger, record model.PayoutRecord, receipt *chain.Receipt, latest **uint64, result RecordResult) (RecordResult, error) {
	if j.confirmations > 0 {
		if *latest == nil {
			block, err := j.client.LatestBlock(ctx)
			if err != nil {
				result.Outcome = OutcomeLookupFailed
				result.Err = &LookupError{RecordId: record.Id, TxHash: result.TxHash, Err: err}
				log.Error("Record %d: failed to get latest block: %v", record.Id, err)
				return result, nil
			}
			*latest = &block
		}
		if !chain.IsConfirmed(receipt, **latest, j.confirmations) {
			result.Outcome = OutcomePending
			log.Info("Record %d: transaction %s mined in block %s, waiting for %d confirmations",
				record.Id, result.TxHash, receipt.BlockNumber.String(), j.confirmations)
			return result, nil
		}
	}

	if err := j.repo.MarkConfirmed(ctx, record.Id); err != nil {
		return j.storeError(log, record, err, result)
	}

	result.Outcome = OutcomeConfirmed
	log.Info("Record %d confirmed: %s tokens to %s, tx %s", record.Id, record.Amount.String(), record.Recipient, result.TxHash)
	return result, nil
}

// handleFailure 上链失败交由操作员决定是否重置重试
func (j *VerifyJob) handleFailure(ctx context.Context, log *logger.Logger, record model.PayoutRecord, receipt *chain.Receipt, kind FailureKind, result RecordResult) (RecordResult, error) {
	failure := &ConfirmedFailure{
		RecordId: record.Id,
		TxHash:   result.TxHash,
		Kind:     kind,
		GasUsed:  receipt.GasUsed,
		GasLimit: receipt.GasLimit,
	}
	result.Err = failure
	log.Warn("%v", failure)

	question := fmt.Sprintf("Record %d (%s tokens to %s) failed: %s. Reset it for resubmission?",
		record.Id, record.Amount.String(), record.Recipient, failure.Error())
	retry, err := j.confirmer.Confirm(ctx, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		log.Error("Record %d: no retry decision, leaving it failed: %v", record.Id, err)
		retry = false
	}

	if !retry {
		result.Outcome = OutcomeFailed
		log.Info("Record %d left as failed for audit", record.Id)
		return result, nil
	}

	if err := j.repo.ResetForRetry(ctx, record.Id); err != nil {
		return j.storeError(log, record, err, result)
	}
	result.Outcome = OutcomeRetry
	log.Info("Record %d reset for resubmission", record.Id)
	return result, nil
}

// storeError 单条记录的更新失败只报告，账本不可用则中止
func (j *VerifyJob) storeError(log *logger.Logger, record model.PayoutRecord, err error, result RecordResult) (RecordResult, error) {
	result.Outcome = OutcomeStoreError
	result.Err = err
	log.Error("Record %d: failed to update status: %v", record.Id, err)
	if errors.Is(err, repository.ErrRecordNotFound) || errors.Is(err, repository.ErrStatusConflict) {
		return result, nil
	}
	return result, fmt.Errorf("failed to update record %d: %w", record.Id, err)
}

// parseTxHash 校验 0x 开头的32字节哈希
func parseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrMalformedTxHash, s)
	}
	return common.BytesToHash(b), nil
}
