package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrUnknownFormat 未知的导出格式
var ErrUnknownFormat = errors.New("unknown export format")

// Format 导出格式
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat 解析导出格式，空串为 text
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Row 导出的一行
type Row struct {
	Id        int64              `json:"id"`
	Name      string             `json:"name"`
	Recipient string             `json:"recipient"`
	Amount    decimal.Decimal    `json:"amount"`
	Bucket    string             `json:"bucket"`
	Status    model.PayoutStatus `json:"status"`
	TxHash    string             `json:"txid,omitempty"`
	TxLink    string             `json:"tx_link,omitempty"`
	Success   bool               `json:"success"`
	Balance   *decimal.Decimal   `json:"balance,omitempty"`
}

// Build 按ID升序读取账本生成导出行
func Build(ctx context.Context, repo *repository.PayoutRepository, network chain.Network, scopes ...func(*gorm.DB) *gorm.DB) ([]Row, error) {
	cursor := repo.Query(scopes...)

	var rows []Row
	for cursor.Next(ctx) {
		rows = append(rows, NewRow(cursor.Record(), network))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// NewRow 由记录生成导出行
func NewRow(record model.PayoutRecord, network chain.Network) Row {
	return Row{
		Id:        record.Id,
		Name:      record.Name,
		Recipient: record.Recipient,
		Amount:    record.Amount.Decimal,
		Bucket:    record.Bucket.String(),
		Status:    record.Status(),
		TxHash:    record.TxHash(),
		TxLink:    network.TxURL(record.TxHash()),
		Success:   record.Success,
	}
}

// BalanceOptions 余额查询参数
type BalanceOptions struct {
	Token    *chain.Contract
	Decimals int32
	Workers  int // 并发查询数
}

// FillBalances 并发查询每个收款地址的代币余额，查询失败的行不填余额
// 同一地址只查询一次
func FillBalances(ctx context.Context, client chain.Client, rows []Row, opts BalanceOptions) error {
	if len(rows) == 0 {
		return nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}

	holders := make(map[string]struct{})
	for _, r := range rows {
		holders[r.Recipient] = struct{}{}
	}

	pool, err := ants.NewPool(min(workers, len(holders)))
	if err != nil {
		return fmt.Errorf("failed to create balance pool: %w", err)
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		balances = make(map[string]decimal.Decimal, len(holders))
		failures int
	)
	for holder := range holders {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			units, err := chain.BalanceOf(ctx, client, opts.Token, common.HexToAddress(holder))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Error("Failed to read balance of %s: %v", holder, err)
				return
			}
			balances[holder] = chain.FromBaseUnits(units, opts.Decimals)
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit balance lookup for %s: %v", holder, err)
		}
	}
	wg.Wait()

	for i := range rows {
		if b, ok := balances[rows[i].Recipient]; ok {
			rows[i].Balance = &b
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if failures > 0 {
		logger.Warn("Balance lookup failed for %d of %d addresses", failures, len(holders))
	}
	return nil
}

// Write 按格式写出
func Write(w io.Writer, rows []Row, format Format) error {
	switch format {
	case FormatText, "":
		return writeText(w, rows)
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		return writeJSON(w, rows)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func withBalance(rows []Row) bool {
	for _, r := range rows {
		if r.Balance != nil {
			return true
		}
	}
	return false
}

func header(balances bool) []string {
	h := []string{"id", "name", "recipient", "amount", "bucket", "status", "tx", "success"}
	if balances {
		h = append(h, "balance")
	}
	return h
}

func fields(r Row, balances bool) []string {
	tx := r.TxLink
	if tx == "" {
		tx = r.TxHash
	}
	f := []string{
		strconv.FormatInt(r.Id, 10),
		r.Name,
		r.Recipient,
		r.Amount.String(),
		r.Bucket,
		string(r.Status),
		tx,
		strconv.FormatBool(r.Success),
	}
	if balances {
		balance := ""
		if r.Balance != nil {
			balance = r.Balance.String()
		}
		f = append(f, balance)
	}
	return f
}

func writeText(w io.Writer, rows []Row) error {
	balances := withBalance(rows)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(header(balances), "\t")))
	for _, r := range rows {
		f := fields(r, balances)
		if f[6] == "" {
			f[6] = "-"
		}
		fmt.Fprintln(tw, strings.Join(f, "\t"))
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, rows []Row) error {
	balances := withBalance(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header(balances)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(fields(r, balances)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
