package chain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Viewly/token-contracts/internal/config"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownChain    = errors.New("unknown chain")
)

// Provider 节点接入方式
type Provider string

const (
	ProviderHTTP   Provider = "http"
	ProviderWS     Provider = "ws"
	ProviderIPC    Provider = "ipc"    // geth IPC
	ProviderParity Provider = "parity" // parity IPC
	ProviderInfura Provider = "infura"
)

// Providers 支持的接入方式
func Providers() []Provider {
	return []Provider{ProviderHTTP, ProviderWS, ProviderIPC, ProviderParity, ProviderInfura}
}

// ParseProvider 解析接入方式
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range Providers() {
		if p == supported {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Network 已知网络
type Network struct {
	Name     string
	ChainId  int64
	Explorer string // 区块浏览器地址，为空表示本地链
}

var networks = map[string]Network{
	"mainnet": {Name: "mainnet", ChainId: 1, Explorer: "https://etherscan.io"},
	"ropsten": {Name: "ropsten", ChainId: 3, Explorer: "https://ropsten.etherscan.io"},
	"rinkeby": {Name: "rinkeby", ChainId: 4, Explorer: "https://rinkeby.etherscan.io"},
	"goerli":  {Name: "goerli", ChainId: 5, Explorer: "https://goerli.etherscan.io"},
	"kovan":   {Name: "kovan", ChainId: 42, Explorer: "https://kovan.etherscan.io"},
	"sepolia": {Name: "sepolia", ChainId: 11155111, Explorer: "https://sepolia.etherscan.io"},
	"testrpc": {Name: "testrpc", ChainId: 1337},
}

// LookupNetwork 按名称查找网络
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return n, nil
}

// TxURL 交易在区块浏览器中的链接，本地链返回交易哈希
func (n Network) TxURL(txHash string) string {
	if txHash == "" {
		return ""
	}
	if n.Explorer == "" {
		return txHash
	}
	return n.Explorer + "/tx/" + txHash
}

// ResolveChainId 配置未指定时使用网络默认链ID
func ResolveChainId(cfg config.ChainConfig) (int64, error) {
	if cfg.ChainId != 0 {
		return cfg.ChainId, nil
	}
	n, err := LookupNetwork(cfg.Name)
	if err != nil {
		return 0, err
	}
	return n.ChainId, nil
}

// Endpoint 根据接入方式生成节点地址
func Endpoint(cfg config.ChainConfig) (string, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return "", err
	}

	switch provider {
	case ProviderHTTP, ProviderWS:
		if cfg.RpcUrl == "" {
			return "", fmt.Errorf("%w: rpc_url is required for provider %s", config.ErrInvalidConfig, provider)
		}
		return cfg.RpcUrl, nil
	case ProviderIPC:
		if cfg.IpcPath != "" {
			return cfg.IpcPath, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home dir: %w", err)
		}
		return GethIPCPath(runtime.GOOS, home, cfg.Name)
	case ProviderParity:
		if cfg.IpcPath != "" {
			return cfg.IpcPath, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home dir: %w", err)
		}
		return ParityIPCPath(runtime.GOOS, home)
	case ProviderInfura:
		if cfg.ApiKey == "" {
			return "", fmt.Errorf("%w: api_key is required for provider infura", config.ErrInvalidConfig)
		}
		n, err := LookupNetwork(cfg.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://%s.infura.io/v3/%s", n.Name, cfg.ApiKey), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// GethIPCPath geth 默认 IPC 路径，主网位于数据目录根下
func GethIPCPath(goos, home, chainName string) (string, error) {
	var dataDir string
	switch goos {
	case "darwin":
		dataDir = filepath.Join(home, "Library", "Ethereum")
	case "linux":
		dataDir = filepath.Join(home, ".ethereum")
	default:
		return "", fmt.Errorf("no default geth ipc path on %s, set chain.ipc_path", goos)
	}
	if chainName == "mainnet" {
		chainName = ""
	}
	return filepath.Join(dataDir, chainName, "geth.ipc"), nil
}

// ParityIPCPath parity 默认 IPC 路径
func ParityIPCPath(goos, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "io.parity.ethereum", "jsonrpc.ipc"), nil
	case "linux":
		return filepath.Join(home, ".local", "share", "io.parity.ethereum", "jsonrpc.ipc"), nil
	default:
		return "", fmt.Errorf("no default parity ipc path on %s, set chain.ipc_path", goos)
	}
}
