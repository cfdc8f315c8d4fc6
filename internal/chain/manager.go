package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrChainIdMismatch 节点所在链与配置不符
var ErrChainIdMismatch = errors.New("chain id mismatch")

// Manager 单链管理器，持有节点连接与签名账户
type Manager struct {
	mu      sync.RWMutex
	client  *ethclient.Client  // 节点连接
	eth     *EthClient         // 交易与查询
	config  config.ChainConfig // 链配置
	network Network
}

// ResolveNetwork 解析网络，未知名称需要显式配置 chain_id
func ResolveNetwork(cfg config.ChainConfig) (Network, error) {
	chainId, err := ResolveChainId(cfg)
	if err != nil {
		return Network{}, err
	}

	network, err := LookupNetwork(cfg.Name)
	if err != nil {
		network = Network{Name: cfg.Name}
	}
	network.ChainId = chainId
	return network, nil
}

// NewManager 连接节点并校验链ID
func NewManager(ctx context.Context, cfg config.ChainConfig) (*Manager, error) {
	network, err := ResolveNetwork(cfg)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		config:  cfg,
		network: network,
	}
	if err := manager.initClient(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return manager, nil
}

// initClient 初始化客户端
func (m *Manager) initClient(ctx context.Context) error {
	endpoint, err := Endpoint(m.config)
	if err != nil {
		return err
	}

	logger.Info("Connecting to %s via %s (%s)", m.network.Name, m.config.Provider, endpoint)
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	// 测试连接
	if err := m.testClientConnection(ctx, client); err != nil {
		client.Close()
		return fmt.Errorf("client connection test failed (%s): %w", m.network.Name, err)
	}

	m.client = client
	m.eth = NewEthClient(client, m.network.ChainId)
	logger.Info("Successfully connected to %s (chain id %d)", m.network.Name, m.network.ChainId)
	return nil
}

// testClientConnection 获取最新区块号并核对链ID
func (m *Manager) testClientConnection(ctx context.Context, client *ethclient.Client) error {
	if _, err := client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	chainId, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainId.Int64() != m.network.ChainId {
		return fmt.Errorf("%w: node reports %s, %s expects %d", ErrChainIdMismatch, chainId.String(), m.network.Name, m.network.ChainId)
	}
	return nil
}

// Authorize 准备运营账户的签名能力，返回账户地址
func (m *Manager) Authorize(op config.OperatorConfig) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var from common.Address
	if op.PrivateKey != "" {
		addr, err := m.eth.AddPrivateKey(op.PrivateKey)
		if err != nil {
			return common.Address{}, err
		}
		if op.Address != "" && !common.IsHexAddress(op.Address) {
			return common.Address{}, fmt.Errorf("%w: invalid operator address %q", config.ErrInvalidConfig, op.Address)
		}
		if op.Address != "" && common.HexToAddress(op.Address) != addr {
			return common.Address{}, fmt.Errorf("%w: private key belongs to %s, not %s", config.ErrInvalidConfig, addr.Hex(), op.Address)
		}
		from = addr
	} else {
		if !common.IsHexAddress(op.Address) {
			return common.Address{}, fmt.Errorf("%w: invalid operator address %q", config.ErrInvalidConfig, op.Address)
		}
		from = common.HexToAddress(op.Address)
		m.eth.UseKeystore(op.KeystoreDir)
	}

	ok, err := m.eth.UnlockAccount(from, op.Passphrase)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAccountLocked, from.Hex())
	}

	logger.Info("Operator account %s ready", from.Hex())
	return from, nil
}

// Client 获取链客户端
func (m *Manager) Client() Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eth
}

// Network 获取网络信息
func (m *Manager) Network() Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.network
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := map[string]interface{}{
		"chain":         m.network.Name,
		"chain_id":      m.network.ChainId,
		"provider":      m.config.Provider,
		"client_status": "connected",
	}

	if m.client == nil {
		health["client_status"] = "not_initialized"
		return health
	}
	latest, err := m.client.BlockNumber(ctx)
	if err != nil {
		health["client_status"] = "disconnected"
		return health
	}
	health["latest_block"] = latest
	return health
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		m.client.Close()
		m.client = nil
	}

	logger.Info("Chain manager closed")
	return nil
}
