package task

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mintABI = `[{"inputs":[{"name":"recipient","type":"address"},{"name":"tokens","type":"uint256"},{"name":"bucket","type":"uint8"}],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const (
	aliceAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobAddr   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carolAddr = "0xcccccccccccccccccccccccccccccccccccccccc"
)

var operator = common.HexToAddress("0x9999999999999999999999999999999999999999")

// fakeClient 内存中的链客户端
type fakeClient struct {
	mu        sync.Mutex
	nonce     int
	submitted []chain.TxRequest
	failFor   map[common.Address]error
	receipts  map[common.Hash]*chain.Receipt
	lookupErr map[common.Hash]error
	latest    uint64
	onSubmit  func(n int)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failFor:   make(map[common.Address]error),
		receipts:  make(map[common.Hash]*chain.Receipt),
		lookupErr: make(map[common.Hash]error),
	}
}

func (f *fakeClient) SubmitTransaction(_ context.Context, req chain.TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	recipient := req.Args[0].(common.Address)
	if err, ok := f.failFor[recipient]; ok {
		return common.Hash{}, err
	}
	f.nonce++
	f.submitted = append(f.submitted, req)
	if f.onSubmit != nil {
		f.onSubmit(f.nonce)
	}
	return common.BigToHash(big.NewInt(int64(f.nonce))), nil
}

func (f *fakeClient) GetReceipt(_ context.Context, txHash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.lookupErr[txHash]; ok {
		return nil, err
	}
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, chain.ErrReceiptNotFound
}

func (f *fakeClient) CallReadonly(context.Context, *chain.Contract, string, ...interface{}) ([]interface{}, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) UnlockAccount(common.Address, string) (bool, error) {
	return true, nil
}

func (f *fakeClient) LatestBlock(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeClient) mine(txHash common.Hash, block int64, status, gasUsed, gasLimit uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[txHash] = &chain.Receipt{
		TxHash:      txHash,
		BlockNumber: big.NewInt(block),
		Status:      status,
		GasUsed:     gasUsed,
		GasLimit:    gasLimit,
	}
}

func newRepository(t *testing.T, amounts ...string) *repository.PayoutRepository {
	t.Helper()
	repo, err := repository.Initialize(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "payouts.db"),
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	addrs := []string{aliceAddr, bobAddr, carolAddr}
	var records []model.PayoutRecord
	for i, amount := range amounts {
		r, err := model.NewPayoutRecord(fmt.Sprintf("user%d", i+1), addrs[i%len(addrs)], decimal.RequireFromString(amount), model.BucketSupporters)
		require.NoError(t, err)
		records = append(records, r)
	}
	require.NoError(t, repo.BulkInsert(context.Background(), records))
	return repo
}

func newPayoutJob(t *testing.T, repo *repository.PayoutRepository, client chain.Client, metrics *Metrics) *PayoutJob {
	t.Helper()
	contract, err := chain.NewContractFromJSON("mintage", "0x1111111111111111111111111111111111111111", []byte(mintABI))
	require.NoError(t, err)
	return NewPayoutJob(repo, client, contract, PayoutOptions{Method: "mint", Decimals: 18, From: operator}, metrics)
}

func hashOf(n int64) string {
	return common.BigToHash(big.NewInt(n)).Hex()
}

func TestPayoutSubmitsEachPendingRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "100", "250.5", "7")
	client := newFakeClient()
	job := newPayoutJob(t, repo, client, nil)

	summary, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count(OutcomeSubmitted))
	require.Len(t, client.submitted, 3)

	records, err := repo.All(ctx)
	require.NoError(t, err)
	for i, r := range records {
		require.NotNil(t, r.Txid)
		assert.Equal(t, hashOf(int64(i+1)), *r.Txid)
		assert.False(t, r.Success)
	}

	req := client.submitted[1]
	assert.Equal(t, "mint", req.Method)
	assert.Equal(t, operator, req.From)
	assert.Equal(t, common.HexToAddress(bobAddr), req.Args[0])
	expected, _ := new(big.Int).SetString("250500000000000000000", 10)
	assert.Equal(t, 0, expected.Cmp(req.Args[1].(*big.Int)))
	assert.Equal(t, uint8(model.BucketSupporters), req.Args[2])

	summary, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.Len(t, client.submitted, 3)
}

func TestPayoutIsolatesSubmissionErrors(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1", "2", "3")
	client := newFakeClient()
	client.failFor[common.HexToAddress(bobAddr)] = errors.New("insufficient funds for gas")
	job := newPayoutJob(t, repo, client, nil)

	summary, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(OutcomeSubmitted))
	assert.Equal(t, 1, summary.Count(OutcomeRejected))

	var subErr *SubmissionError
	require.ErrorAs(t, summary.Results[1].Err, &subErr)
	assert.Equal(t, int64(2), subErr.RecordId)

	bob, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, bob.Txid)

	carol, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, carol.Txid)
}

func TestPayoutRejectsFractionalBaseUnits(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "0.0000001", "5")
	client := newFakeClient()
	job := newPayoutJob(t, repo, client, nil)
	job.opts.Decimals = 6

	summary, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, summary.Results[0].Outcome)
	assert.ErrorIs(t, summary.Results[0].Err, chain.ErrFractionalUnits)
	assert.Equal(t, OutcomeSubmitted, summary.Results[1].Outcome)
}

func TestPayoutStopsOnCancel(t *testing.T) {
	repo := newRepository(t, "1", "2", "3")
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	client.onSubmit = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	job := newPayoutJob(t, repo, client, nil)

	summary, err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Count(OutcomeSubmitted))

	pending, err := repo.Count(context.Background(), repository.Unsubmitted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestPayoutRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	repo := newRepository(t, "1", "2")
	job := newPayoutJob(t, repo, newFakeClient(), metrics)

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.records.WithLabelValues("payout_submitter", string(OutcomeSubmitted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("payout_submitter", "ok")))
}

func submitAll(t *testing.T, repo *repository.PayoutRepository, client *fakeClient) {
	t.Helper()
	_, err := newPayoutJob(t, repo, client, nil).Run(context.Background())
	require.NoError(t, err)
}

func TestVerifyConfirmsSuccessfulTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1", "2")
	client := newFakeClient()
	submitAll(t, repo, client)

	client.mine(common.HexToHash(hashOf(1)), 10, 1, 50000, 100000)

	confirmer := prompt.Always(false)
	summary, err := NewVerifyJob(repo, client, confirmer, 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, summary.Results[0].Outcome)
	assert.Equal(t, OutcomePending, summary.Results[1].Outcome)
	assert.Empty(t, confirmer.Questions())

	first, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, hashOf(1), first.TxHash())

	second, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.NotNil(t, second.Txid)

	summary, err = NewVerifyJob(repo, client, confirmer, 0, nil).Run(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, int64(2), summary.Results[0].RecordId)
}

func TestVerifyOutOfGasDeniedLeavesRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1")
	client := newFakeClient()
	submitAll(t, repo, client)
	client.mine(common.HexToHash(hashOf(1)), 10, 0, 90000, 90000)

	confirmer := prompt.Always(false)
	summary, err := NewVerifyJob(repo, client, confirmer, 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, summary.Results[0].Outcome)
	require.Len(t, confirmer.Questions(), 1)

	var failure *ConfirmedFailure
	require.ErrorAs(t, summary.Results[0].Err, &failure)
	assert.Equal(t, FailureOutOfGas, failure.Kind)

	record, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, hashOf(1), record.TxHash())
	assert.False(t, record.Success)
}

func TestVerifyOutOfGasApprovedResetsRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1")
	client := newFakeClient()
	submitAll(t, repo, client)
	client.mine(common.HexToHash(hashOf(1)), 10, 0, 90000, 90000)

	summary, err := NewVerifyJob(repo, client, prompt.Always(true), 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, summary.Results[0].Outcome)

	record, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, record.Txid)
	assert.False(t, record.Success)

	// 重置后的记录会被再次提交
	submitAll(t, repo, client)
	record, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, hashOf(2), record.TxHash())
}

func TestVerifyRevertedTransaction(t *testing.T) {
	repo := newRepository(t, "1")
	client := newFakeClient()
	submitAll(t, repo, client)
	client.mine(common.HexToHash(hashOf(1)), 10, 0, 30000, 90000)

	summary, err := NewVerifyJob(repo, client, prompt.Always(false), 0, nil).Run(context.Background())
	require.NoError(t, err)

	var failure *ConfirmedFailure
	require.ErrorAs(t, summary.Results[0].Err, &failure)
	assert.Equal(t, FailureReverted, failure.Kind)
}

func TestVerifyIsolatesLookupErrors(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1", "2", "3")
	client := newFakeClient()
	submitAll(t, repo, client)

	client.lookupErr[common.HexToHash(hashOf(1))] = errors.New("connection reset")
	client.lookupErr[common.HexToHash(hashOf(2))] = chain.ErrTransactionUnknown
	client.mine(common.HexToHash(hashOf(3)), 10, 1, 21000, 90000)

	summary, err := NewVerifyJob(repo, client, prompt.Always(false), 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLookupFailed, summary.Results[0].Outcome)
	assert.Equal(t, OutcomeUnknown, summary.Results[1].Outcome)
	assert.Equal(t, OutcomeConfirmed, summary.Results[2].Outcome)

	var lookupErr *LookupError
	require.ErrorAs(t, summary.Results[0].Err, &lookupErr)
	assert.Equal(t, hashOf(1), lookupErr.TxHash)

	awaiting, err := repo.Count(ctx, repository.AwaitingConfirmation)
	require.NoError(t, err)
	assert.Equal(t, int64(2), awaiting)
}

func TestVerifyMalformedTxHash(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1")
	require.NoError(t, repo.MarkSubmitted(ctx, 1, "0x1234"))

	summary, err := NewVerifyJob(repo, newFakeClient(), prompt.Always(false), 0, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLookupFailed, summary.Results[0].Outcome)
	assert.ErrorIs(t, summary.Results[0].Err, ErrMalformedTxHash)
}

func TestVerifyWaitsForConfirmations(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1")
	client := newFakeClient()
	submitAll(t, repo, client)
	client.mine(common.HexToHash(hashOf(1)), 100, 1, 21000, 90000)
	client.latest = 102

	summary, err := NewVerifyJob(repo, client, prompt.Always(false), 3, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, summary.Results[0].Outcome)

	client.latest = 103
	summary, err = NewVerifyJob(repo, client, prompt.Always(false), 3, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, summary.Results[0].Outcome)
}

func TestCycleJobRunsPayoutThenVerify(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, "1", "2")
	client := newFakeClient()
	for i := int64(1); i <= 2; i++ {
		client.mine(common.HexToHash(hashOf(i)), 5, 1, 21000, 90000)
	}

	job := NewCycleJob(ctx, newPayoutJob(t, repo, client, nil), NewVerifyJob(repo, client, prompt.Always(false), 0, nil), time.Second)
	assert.Equal(t, "payout_cycle", job.GetName())
	job.Execute()

	confirmed, err := repo.Count(ctx, repository.Confirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), confirmed)
}

func TestManagerRegistersJobs(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	repo := newRepository(t, "1")
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, manager.Register(NewCycleJob(ctx, nil, NewVerifyJob(repo, client, prompt.Always(false), 0, nil), time.Hour)))
	assert.Equal(t, []string{"payout_cycle"}, manager.Jobs())

	manager.Start()
	manager.Stop()
}
