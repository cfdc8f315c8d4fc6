package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig 配置不完整或取值非法
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Operator OperatorConfig `mapstructure:"operator"`
	Payout   PayoutConfig   `mapstructure:"payout"`
	Token    TokenConfig    `mapstructure:"token"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 账本存储配置，sqlite 使用单文件 Path，其余驱动使用连接参数
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres, mysql
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GetPort 未配置端口时返回驱动的默认端口
func (d DatabaseConfig) GetPort() int {
	if d.Port != 0 {
		return d.Port
	}
	switch d.Driver {
	case "postgres":
		return 5432
	case "mysql":
		return 3306
	default:
		return 0
	}
}

// ChainConfig 单链配置
type ChainConfig struct {
	Name          string `mapstructure:"name"`          // 链名称 (mainnet, ropsten, ...)
	Provider      string `mapstructure:"provider"`      // 节点接入方式 (http, ws, ipc, parity, infura)
	RpcUrl        string `mapstructure:"rpc_url"`       // http/ws 节点URL
	IpcPath       string `mapstructure:"ipc_path"`      // IPC 路径，为空时使用 geth 默认路径
	ApiKey        string `mapstructure:"api_key"`       // infura 项目ID
	ChainId       int64  `mapstructure:"chain_id"`      // 为0时使用链名称对应的默认值
	Confirmations uint64 `mapstructure:"confirmations"` // 成功交易需要的确认块数
}

// OperatorConfig 发起交易的运营账户
type OperatorConfig struct {
	Address     string `mapstructure:"address"`
	PrivateKey  string `mapstructure:"private_key"`
	KeystoreDir string `mapstructure:"keystore_dir"`
	Passphrase  string `mapstructure:"passphrase"`
}

// PayoutConfig 铸币合约配置
type PayoutConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	ABIPath         string `mapstructure:"abi_path"`
	Method          string `mapstructure:"method"`    // 合约方法，默认 mint
	Decimals        int32  `mapstructure:"decimals"`  // 代币精度
	GasLimit        uint64 `mapstructure:"gas_limit"` // 为0时由节点估算
}

// TokenConfig 代币合约，用于导出时查询余额
type TokenConfig struct {
	Address string `mapstructure:"address"`
}

type VerifyConfig struct {
	RetryPolicy string `mapstructure:"retry_policy"` // ask, approve, deny
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// flagKeys 命令行参数 -> 配置项
var flagKeys = map[string]string{
	"provider":         "chain.provider",
	"chain":            "chain.name",
	"rpc-url":          "chain.rpc_url",
	"ipc-path":         "chain.ipc_path",
	"api-key":          "chain.api_key",
	"confirmations":    "chain.confirmations",
	"owner":            "operator.address",
	"keystore":         "operator.keystore_dir",
	"contract-address": "payout.contract_address",
	"abi-path":         "payout.abi_path",
	"method":           "payout.method",
	"decimals":         "payout.decimals",
	"gas-limit":        "payout.gas_limit",
	"token-address":    "token.address",
	"retry-policy":     "verify.retry_policy",
	"driver":           "database.driver",
	"port":             "server.port",
	"log-level":        "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "payouts.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0) // 0 表示使用驱动默认端口
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "distribution")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("chain.name", "mainnet")
	v.SetDefault("chain.provider", "ipc")
	v.SetDefault("chain.confirmations", 0)
	v.SetDefault("payout.method", "mint")
	v.SetDefault("payout.decimals", 18)
	v.SetDefault("payout.gas_limit", 0)
	v.SetDefault("verify.retry_policy", "ask")
	v.SetDefault("task.interval", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "logs/distributor.log")
}

// Load 加载配置，优先级: 命令行参数 > 环境变量 > 配置文件 > 默认值
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("distributor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/distributor")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}

// ValidateChain 验证链接入配置
func (c *Config) ValidateChain() error {
	if c.Chain.Name == "" {
		return fmt.Errorf("%w: chain name is required", ErrInvalidConfig)
	}
	if c.Chain.Provider == "" {
		return fmt.Errorf("%w: chain provider is required", ErrInvalidConfig)
	}
	return nil
}

// ValidatePayout 验证发放所需的合约与账户配置
func (c *Config) ValidatePayout() error {
	if err := c.ValidateChain(); err != nil {
		return err
	}
	if c.Payout.ContractAddress == "" {
		return fmt.Errorf("%w: payout contract address is required", ErrInvalidConfig)
	}
	if c.Payout.ABIPath == "" {
		return fmt.Errorf("%w: payout abi path is required", ErrInvalidConfig)
	}
	if c.Payout.Method == "" {
		return fmt.Errorf("%w: payout method is required", ErrInvalidConfig)
	}
	if c.Payout.Decimals < 0 || c.Payout.Decimals > 77 {
		return fmt.Errorf("%w: token decimals %d out of range", ErrInvalidConfig, c.Payout.Decimals)
	}
	if c.Operator.PrivateKey == "" && c.Operator.KeystoreDir == "" {
		return fmt.Errorf("%w: operator private key or keystore dir is required", ErrInvalidConfig)
	}
	if c.Operator.KeystoreDir != "" && c.Operator.Address == "" {
		return fmt.Errorf("%w: operator address is required when using a keystore", ErrInvalidConfig)
	}
	return nil
}

// ValidateDatabase 验证账本存储配置
func (c *Config) ValidateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database path is required for sqlite", ErrInvalidConfig)
		}
	case "postgres", "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("%w: database host and dbname are required for %s", ErrInvalidConfig, c.Database.Driver)
		}
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	return nil
}
