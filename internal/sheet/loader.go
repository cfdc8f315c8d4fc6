package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Viewly/token-contracts/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrFormat       = errors.New("unrecognized payout sheet format")
	ErrMissingField = errors.New("missing required field")
	ErrNoRecords    = errors.New("payout sheet has no records")
)

// Format 发放表格式
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

// 规范字段名
const (
	FieldName      = "name"
	FieldAmount    = "amount"
	FieldRecipient = "recipient"
	FieldBucket    = "bucket"
)

var requiredFields = []string{FieldRecipient, FieldAmount, FieldBucket}

// fieldAliases 小写表头 -> 规范字段，包含外部表格的旧表头
var fieldAliases = map[string]string{
	FieldName:      FieldName,
	FieldAmount:    FieldAmount,
	FieldRecipient: FieldRecipient,
	FieldBucket:    FieldBucket,
	"tokens":       FieldAmount,
	"address":      FieldRecipient,
	"category":     FieldBucket,
}

// ValidationError 输入行校验失败，Row 为从1开始的数据行号
type ValidationError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %s: %v", e.Row, e.Field, e.Err)
	}
	return fmt.Sprintf("row %d: %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Row 规范化后的一行，字段名 -> 原始值
type Row map[string]string

// field 保留原始顺序的键值对
type field struct {
	Key   string
	Value string
}

type rawRow []field

// get 按原始键名查找值，大小写不敏感
func (r rawRow) get(key string) (string, bool) {
	for _, f := range r {
		if strings.EqualFold(strings.TrimSpace(f.Key), key) {
			return f.Value, true
		}
	}
	return "", false
}

// ParseFormat 解析格式名称
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatTSV:
		return FormatTSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, s)
	}
}

// NormalizeField 将表头映射为规范字段名，不支持的表头返回空串
func NormalizeField(label string) string {
	return fieldAliases[strings.ToLower(strings.TrimSpace(label))]
}

// Load 读取并校验发放表，任意一行不合法则整体失败
func Load(path string, format Format) ([]model.PayoutRecord, error) {
	rows, err := ReadRows(path, format)
	if err != nil {
		return nil, err
	}
	return Validate(rows)
}

// ReadRows 读取发放表并规范化字段，不做取值校验
func ReadRows(path string, format Format) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payout sheet %s: %w", path, err)
	}

	if format == FormatAuto || format == "" {
		format, err = detectFormat(path, data)
		if err != nil {
			return nil, err
		}
	}

	raw, err := decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	return normalizeRows(raw), nil
}

// Decode 按指定格式解析发放表
func Decode(r io.Reader, format Format) ([]Row, error) {
	raw, err := decode(r, format)
	if err != nil {
		return nil, err
	}
	return normalizeRows(raw), nil
}

func decode(r io.Reader, format Format) ([]rawRow, error) {
	switch format {
	case FormatCSV:
		return decodeDelimited(r, ',')
	case FormatTSV:
		return decodeDelimited(r, '\t')
	case FormatJSON:
		return decodeJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

// detectFormat 先按扩展名判断，再按内容判断
func detectFormat(path string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".json":
		return FormatJSON, nil
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: cannot infer format of %s", ErrFormat, path)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeDelimited(r io.Reader, comma rune) ([]rawRow, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(bom, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header row", ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var rows []rawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if isBlank(record) {
			continue
		}

		row := make(rawRow, 0, len(header))
		for i, key := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			row = append(row, field{Key: key, Value: value})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// decodeJSON 解析对象数组，保留对象内键的顺序
func decodeJSON(r io.Reader) ([]rawRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array of objects", ErrFormat)
	}

	var rows []rawRow
	for dec.More() {
		row, err := decodeJSONObject(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrFormat, len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return rows, nil
}

func decodeJSONObject(dec *json.Decoder) (rawRow, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected an object")
	}

	var row rawRow
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("expected an object key")
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		row = append(row, field{Key: key, Value: jsonScalar(value)})
	}
	// 读取结束的 '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return row, nil
}

func jsonScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// normalizeRows 映射表头，同一规范字段出现多次时以先出现的列为准
func normalizeRows(raw []rawRow) []Row {
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		row := make(Row, len(fieldAliases))
		for _, f := range r {
			name := NormalizeField(f.Key)
			if name == "" {
				continue
			}
			if _, seen := row[name]; seen {
				continue
			}
			row[name] = f.Value
		}
		rows = append(rows, row)
	}
	return rows
}

// Validate 校验全部行并构造发放记录，返回所有不合法行的错误
func Validate(rows []Row) ([]model.PayoutRecord, error) {
	if len(rows) == 0 {
		return nil, ErrNoRecords
	}

	records := make([]model.PayoutRecord, 0, len(rows))
	var errs []error
	for i, row := range rows {
		record, err := validateRow(i+1, row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

func validateRow(n int, row Row) (model.PayoutRecord, error) {
	for _, name := range requiredFields {
		if strings.TrimSpace(row[name]) == "" {
			return model.PayoutRecord{}, &ValidationError{Row: n, Field: name, Err: ErrMissingField}
		}
	}

	recipient := strings.TrimSpace(row[FieldRecipient])
	if !model.IsValidAddress(recipient) {
		return model.PayoutRecord{}, &ValidationError{Row: n, Field: FieldRecipient, Value: recipient, Err: model.ErrInvalidAddress}
	}

	amount, err := ParseAmount(row[FieldAmount])
	if err != nil {
		return model.PayoutRecord{}, &ValidationError{Row: n, Field: FieldAmount, Value: row[FieldAmount], Err: err}
	}

	bucket, err := model.ParseBucket(row[FieldBucket])
	if err != nil {
		return model.PayoutRecord{}, &ValidationError{Row: n, Field: FieldBucket, Value: row[FieldBucket], Err: model.ErrUnknownBucket}
	}

	record, err := model.NewPayoutRecord(strings.TrimSpace(row[FieldName]), recipient, amount, bucket)
	if err != nil {
		return model.PayoutRecord{}, &ValidationError{Row: n, Field: "record", Err: err}
	}
	return record, nil
}

// amountReplacer 去除千分位逗号与下划线
var amountReplacer = strings.NewReplacer(",", "", "_", "")

// ParseAmount 解析以整币为单位的非负精确数量
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := amountReplacer.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", model.ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not a number", model.ErrInvalidAmount)
	}
	if err := model.CheckAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
