package sheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUnknownName 发放表中的姓名在地址簿中不存在
var ErrUnknownName = errors.New("name not found in address book")

// addressBookKey 发放表与地址簿的关联列
const addressBookKey = "name"

// ConvertedRow 导出给 import 使用的一行
type ConvertedRow struct {
	Name      string `json:"name,omitempty"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Bucket    string `json:"bucket"`
}

// MergeAddressBook 按姓名合并发放表与地址簿，地址簿的同名列覆盖发放表
func MergeAddressBook(payoutSheet, addressBook io.Reader) ([]ConvertedRow, error) {
	payouts, err := decodeDelimited(payoutSheet, ',')
	if err != nil {
		return nil, fmt.Errorf("payout sheet: %w", err)
	}
	book, err := decodeDelimited(addressBook, ',')
	if err != nil {
		return nil, fmt.Errorf("address book: %w", err)
	}

	entries := make(map[string]rawRow, len(book))
	for _, entry := range book {
		name, _ := entry.get(addressBookKey)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// 重名时使用第一条
		if _, ok := entries[name]; !ok {
			entries[name] = entry
		}
	}

	converted := make([]ConvertedRow, 0, len(payouts))
	for i, payout := range payouts {
		name, _ := payout.get(addressBookKey)
		name = strings.TrimSpace(name)
		entry, ok := entries[name]
		if !ok {
			return nil, fmt.Errorf("row %d: %w: %q", i+1, ErrUnknownName, name)
		}

		merged := make(rawRow, 0, len(entry)+len(payout))
		merged = append(merged, entry...)
		merged = append(merged, payout...)
		row := normalizeRows([]rawRow{merged})[0]

		converted = append(converted, ConvertedRow{
			Name:      row[FieldName],
			Recipient: row[FieldRecipient],
			Amount:    row[FieldAmount],
			Bucket:    row[FieldBucket],
		})
	}
	return converted, nil
}

// Convert 读取两个 CSV 文件，向 w 写出格式化的 JSON
func Convert(payoutSheetPath, addressBookPath string, w io.Writer) (int, error) {
	payoutSheet, err := os.Open(payoutSheetPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open payout sheet: %w", err)
	}
	defer payoutSheet.Close()

	addressBook, err := os.Open(addressBookPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open address book: %w", err)
	}
	defer addressBook.Close()

	rows, err := MergeAddressBook(payoutSheet, addressBook)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return 0, fmt.Errorf("failed to encode payouts: %w", err)
	}
	return len(rows), nil
}
