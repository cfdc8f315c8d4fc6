package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrReceiptNotFound    = errors.New("transaction receipt not found")
	ErrTransactionUnknown = errors.New("transaction unknown to node")
	ErrAccountLocked      = errors.New("operator account is locked")
	ErrAccountNotFound    = errors.New("account not found in keystore")
)

// TxRequest 一次状态变更的合约调用
type TxRequest struct {
	Contract *Contract
	Method   string
	Args     []interface{}
	From     common.Address
	Value    *big.Int // 为空表示不附带 ETH
	GasLimit uint64   // 为0时由节点估算
}

// Receipt 交易回执
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int // 未打包时为空
	Status      uint64
	GasUsed     uint64
	GasLimit    uint64 // 交易提交时给定的 gas 上限
}

// Client 链客户端，发放与核对流程只依赖该接口
type Client interface {
	// SubmitTransaction 提交交易，节点接受后立即返回交易哈希，不等待确认
	SubmitTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// GetReceipt 查询回执，尚未打包返回 ErrReceiptNotFound
	GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
	CallReadonly(ctx context.Context, contract *Contract, method string, args ...interface{}) ([]interface{}, error)
	UnlockAccount(address common.Address, passphrase string) (bool, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// Backend EthClient 需要的节点能力，*ethclient.Client 满足该接口
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthClient 基于 go-ethereum 的链客户端
type EthClient struct {
	backend Backend
	chainId *big.Int

	mu       sync.RWMutex
	keystore *keystore.KeyStore
	keys     map[common.Address]*ecdsa.PrivateKey
	signers  map[common.Address]*bind.TransactOpts
}

// NewEthClient 创建链客户端
func NewEthClient(backend Backend, chainId int64) *EthClient {
	return &EthClient{
		backend: backend,
		chainId: big.NewInt(chainId),
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
		signers: make(map[common.Address]*bind.TransactOpts),
	}
}

// AddPrivateKey 导入私钥，私钥账户无需解锁
func (c *EthClient) AddPrivateKey(hexKey string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(privateKey, c.chainId)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to create transactor: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[opts.From] = privateKey
	c.signers[opts.From] = opts
	return opts.From, nil
}

// UseKeystore 使用 keystore 目录中的账户，需要 UnlockAccount 后才能签名
func (c *EthClient) UseKeystore(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keystore = keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
}

// UnlockAccount 解锁账户，私钥账户始终返回 true
func (c *EthClient) UnlockAccount(address common.Address, passphrase string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[address]; ok {
		return true, nil
	}
	if c.keystore == nil {
		return false, fmt.Errorf("%w: %s", ErrAccountNotFound, address.Hex())
	}

	account, err := c.keystore.Find(accounts.Account{Address: address})
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrAccountNotFound, address.Hex())
	}
	if err := c.keystore.Unlock(account, passphrase); err != nil {
		// 口令错误不是调用错误
		return false, nil
	}

	opts, err := bind.NewKeyStoreTransactorWithChainID(c.keystore, account, c.chainId)
	if err != nil {
		return false, fmt.Errorf("failed to create keystore transactor: %w", err)
	}
	c.signers[address] = opts
	return true, nil
}

func (c *EthClient) signer(from common.Address) (*bind.TransactOpts, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts, ok := c.signers[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountLocked, from.Hex())
	}
	return opts, nil
}

// SubmitTransaction 签名并发送合约交易，nonce 由节点的 pending nonce 决定
func (c *EthClient) SubmitTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.Contract == nil {
		return common.Hash{}, errors.New("transaction request has no contract")
	}

	opts, err := c.signer(req.From)
	if err != nil {
		return common.Hash{}, err
	}

	auth := *opts
	auth.Context = ctx
	auth.Value = req.Value
	auth.GasLimit = req.GasLimit

	bound := bind.NewBoundContract(req.Contract.address, req.Contract.abi, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(&auth, req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// GetReceipt 查询回执，回执缺失时区分待打包与节点未知的交易
func (c *EthClient) GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		_, _, txErr := c.backend.TransactionByHash(ctx, txHash)
		if errors.Is(txErr, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionUnknown, txHash.Hex())
		}
		if txErr != nil {
			return nil, txErr
		}
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash.Hex())
	}

	// 回执不含 gas 上限，需要查询原交易
	tx, _, err := c.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}

	return &Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber,
		Status:      receipt.Status,
		GasUsed:     receipt.GasUsed,
		GasLimit:    tx.Gas(),
	}, nil
}

// CallReadonly 只读调用
func (c *EthClient) CallReadonly(ctx context.Context, contract *Contract, method string, args ...interface{}) ([]interface{}, error) {
	bound := bind.NewBoundContract(contract.address, contract.abi, c.backend, c.backend, c.backend)

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestBlock 最新区块号
func (c *EthClient) LatestBlock(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}
