package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownMethod   = errors.New("method not found in contract ABI")
	ErrArgumentCount   = errors.New("wrong number of method arguments")
	ErrInvalidArgument = errors.New("invalid method argument")
)

// Contract 合约地址与ABI
type Contract struct {
	address common.Address // 合约地址
	abi     abi.ABI        // 合约ABI
	name    string         // 合约名称
}

// NewContract 从ABI文件创建合约，文件可以是完整编译输出或ABI数组
func NewContract(name, address, abiPath string) (*Contract, error) {
	abiData, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ABI from %s: %w", abiPath, err)
	}
	return NewContractFromJSON(name, address, abiData)
}

// NewContractFromJSON 从ABI内容创建合约
func NewContractFromJSON(name, address string, abiData []byte) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid %s contract address: %q", name, address)
	}

	// 尝试解析为完整的编译输出文件
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}

	var parsedABI abi.ABI
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err = abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
	} else {
		// 不是完整编译输出，直接解析为ABI数组
		parsedABI, err = abi.JSON(bytes.NewReader(abiData))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI: %w", err)
		}
	}

	return &Contract{
		address: common.HexToAddress(address),
		abi:     parsedABI,
		name:    name,
	}, nil
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetABI 获取合约ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// Method 查找合约方法
func (c *Contract) Method(name string) (abi.Method, error) {
	method, ok := c.abi.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, c.name, name)
	}
	return method, nil
}

// Args 按方法签名转换参数，整数按位宽转换为对应的 Go 类型
func (c *Contract) Args(methodName string, values ...interface{}) ([]interface{}, error) {
	method, err := c.Method(methodName)
	if err != nil {
		return nil, err
	}
	if len(method.Inputs) != len(values) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArgumentCount, method.Sig, len(method.Inputs), len(values))
	}

	args := make([]interface{}, len(values))
	for i, input := range method.Inputs {
		arg, err := ConvertArg(input.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("%s argument %q: %w", method.Sig, input.Name, err)
		}
		args[i] = arg
	}
	return args, nil
}

// ConvertArg 将参数转换为ABI编码要求的类型
func ConvertArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		switch val := v.(type) {
		case common.Address:
			return val, nil
		case string:
			if !common.IsHexAddress(val) {
				return nil, fmt.Errorf("%w: %q is not an address", ErrInvalidArgument, val)
			}
			return common.HexToAddress(val), nil
		}
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return sizedInt(t, n)
	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot use %T as %s", ErrInvalidArgument, v, t.String())
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, fmt.Errorf("%w: nil integer", ErrInvalidArgument)
		}
		return new(big.Int).Set(val), nil
	case int:
		return big.NewInt(int64(val)), nil
	case int64:
		return big.NewInt(val), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(val), 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidArgument, val)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: cannot use %T as integer", ErrInvalidArgument, v)
	}
}

// sizedInt go-ethereum 对 8/16/32/64 位整数要求原生类型，其余位宽使用 *big.Int
func sizedInt(t abi.Type, n *big.Int) (interface{}, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%w: %s out of range for %s", ErrInvalidArgument, n.String(), t.String())
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		}
		return n, nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("%w: %s out of range for %s", ErrInvalidArgument, n.String(), t.String())
	}
	switch t.Size {
	case 8:
		return int8(n.Int64()), nil
	case 16:
		return int16(n.Int64()), nil
	case 32:
		return int32(n.Int64()), nil
	case 64:
		return n.Int64(), nil
	}
	return n, nil
}
