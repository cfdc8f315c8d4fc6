package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// erc20ABI 只包含导出余额需要的只读方法
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// NewERC20 创建标准 ERC20 代币合约
func NewERC20(address string) (*Contract, error) {
	return NewContractFromJSON("erc20", address, []byte(erc20ABI))
}

// BalanceOf 查询代币余额（最小单位）
func BalanceOf(ctx context.Context, client Client, token *Contract, holder common.Address) (*big.Int, error) {
	out, err := client.CallReadonly(ctx, token, "balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", holder.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("balanceOf(%s): unexpected %d return values", holder.Hex(), len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf(%s): unexpected return type %T", holder.Hex(), out[0])
	}
	return balance, nil
}
