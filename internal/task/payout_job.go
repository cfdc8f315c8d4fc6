package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayoutOptions 铸币调用参数
type PayoutOptions struct {
	Method   string         // 合约方法，参数为 (recipient, tokens, bucket)
	Decimals int32          // 代币精度
	GasLimit uint64         // 为0时由节点估算
	From     common.Address // 运营账户
}

// PayoutJob 为每条待提交记录发送一笔铸币交易
type PayoutJob struct {
	repo     *repository.PayoutRepository
	client   chain.Client
	contract *chain.Contract
	opts     PayoutOptions
	metrics  *Metrics
}

// NewPayoutJob 创建发放任务
func NewPayoutJob(repo *repository.PayoutRepository, client chain.Client, contract *chain.Contract, opts PayoutOptions, metrics *Metrics) *PayoutJob {
	if opts.Method == "" {
		opts.Method = "mint"
	}
	return &PayoutJob{
		repo:     repo,
		client:   client,
		contract: contract,
		opts:     opts,
		metrics:  metrics,
	}
}

// GetName 获取任务名称
func (j *PayoutJob) GetName() string {
	return "payout_submitter"
}

// Run 按ID升序处理所有待提交记录，单条失败不影响后续记录
// 只有账本不可用时返回错误，此前已处理的结果仍在 Summary 中
func (j *PayoutJob) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunId: uuid.NewString(), Job: j.GetName()}
	log := logger.With(zap.String("run_id", summary.RunId), zap.String("job", j.GetName()))

	log.Info("Starting payout run (contract %s, method %s)", j.contract.GetAddress().Hex(), j.opts.Method)

	err := j.run(ctx, log, summary)
	j.metrics.observeRun(j.GetName(), err, time.Since(started).Seconds())

	counts := summary.Counts()
	log.Info("Payout run finished: %d submitted, %d rejected, %d store errors",
		counts[OutcomeSubmitted], counts[OutcomeRejected], counts[OutcomeStoreError])
	return summary, err
}

func (j *PayoutJob) run(ctx context.Context, log *logger.Logger, summary *Summary) error {
	cursor := j.repo.Query(repository.Unsubmitted)
	for cursor.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := j.submit(ctx, log, cursor.Record())
		summary.Results = append(summary.Results, result)
		j.metrics.observeRecord(j.GetName(), result.Outcome)
		if err != nil {
			return err
		}
	}
	return cursor.Err()
}

// submit 处理单条记录，只有账本写入失败时返回错误
func (j *PayoutJob) submit(ctx context.Context, log *logger.Logger, record model.PayoutRecord) (RecordResult, error) {
	result := newResult(record)

	args, err := j.buildArgs(record)
	if err != nil {
		result.Outcome = OutcomeRejected
		result.Err = &SubmissionError{RecordId: record.Id, Err: err}
		log.Error("Skipping record %d (%s): %v", record.Id, record.Recipient, err)
		return result, nil
	}

	txHash, err := j.client.SubmitTransaction(ctx, chain.TxRequest{
		Contract: j.contract,
		Method:   j.opts.Method,
		Args:     args,
		From:     j.opts.From,
		GasLimit: j.opts.GasLimit,
	})
	if err != nil {
		result.Outcome = OutcomeRejected
		result.Err = &SubmissionError{RecordId: record.Id, Err: err}
		log.Error("Failed to submit record %d (%s, %s tokens): %v", record.Id, record.Recipient, record.Amount.String(), err)
		return result, nil
	}

	result.TxHash = txHash.Hex()
	// 节点已接受交易，取消信号不能阻止写入 txid
	if err := j.repo.MarkSubmitted(context.WithoutCancel(ctx), record.Id, txHash.Hex()); err != nil {
		result.Outcome = OutcomeStoreError
		result.Err = err
		// 交易已被节点接受但账本中没有记录
		log.Error("Transaction %s for record %d was sent but not recorded: %v", txHash.Hex(), record.Id, err)
		if errors.Is(err, repository.ErrRecordNotFound) || errors.Is(err, repository.ErrStatusConflict) {
			return result, nil
		}
		return result, fmt.Errorf("failed to record transaction %s for record %d: %w", txHash.Hex(), record.Id, err)
	}

	result.Outcome = OutcomeSubmitted
	log.Info("Submitted record %d: %s tokens to %s (bucket %s), tx %s",
		record.Id, record.Amount.String(), record.Recipient, record.Bucket, txHash.Hex())
	return result, nil
}

// buildArgs 构造 (recipient, tokens, bucket) 参数，数量按代币精度换算为整数
func (j *PayoutJob) buildArgs(record model.PayoutRecord) ([]interface{}, error) {
	tokens, err := chain.ToBaseUnits(record.Amount.Decimal, j.opts.Decimals)
	if err != nil {
		return nil, err
	}
	return j.contract.Args(j.opts.Method, common.HexToAddress(record.Recipient), tokens, uint8(record.Bucket))
}
