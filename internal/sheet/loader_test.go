package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Viewly/token-contracts/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobAddr   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONSheet(t *testing.T) {
	path := writeFile(t, "payouts.json", `[
		{"name": "Alice", "recipient": "`+aliceAddr+`", "amount": "1,000", "bucket": "Team"},
		{"name": "Bob", "recipient": "`+bobAddr+`", "amount": 50.5, "bucket": "Bounties"}
	]`)

	records, err := Load(path, FormatAuto)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Alice", records[0].Name)
	assert.True(t, records[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.BucketTeam, records[0].Bucket)
	assert.Nil(t, records[0].Txid)
	assert.False(t, records[0].Success)

	assert.Equal(t, "Bob", records[1].Name)
	assert.True(t, records[1].Amount.Equal(decimal.RequireFromString("50.5")))
	assert.Equal(t, model.BucketBounties, records[1].Bucket)
}

func TestLoadCSVWithLegacyHeaders(t *testing.T) {
	path := writeFile(t, "sheet.csv", "\ufeffName,Tokens,Address,Category,Notes\n"+
		"Alice,\"1,000\","+aliceAddr+",founders,ignored\n"+
		"\n"+
		"Bob,50.5,"+bobAddr+",Seed Sale,\n")

	records, err := Load(path, FormatAuto)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.BucketTeam, records[0].Bucket)
	assert.True(t, records[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.BucketSeedSale, records[1].Bucket)
}

func TestLoadTSV(t *testing.T) {
	path := writeFile(t, "sheet.tsv", "recipient\tamount\tbucket\n"+aliceAddr+"\t7\tCreators\n")

	records, err := Load(path, FormatAuto)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Name)
	assert.Equal(t, model.BucketCreators, records[0].Bucket)
}

func TestLoadInfersJSONFromContent(t *testing.T) {
	path := writeFile(t, "payouts.txt", ` [{"recipient": "`+aliceAddr+`", "amount": "1", "bucket": "team"}]`)

	records, err := Load(path, FormatAuto)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLoadFormatErrors(t *testing.T) {
	t.Run("unknown extension", func(t *testing.T) {
		path := writeFile(t, "payouts.xlsx", "recipient,amount,bucket\n")
		_, err := Load(path, FormatAuto)
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("json object instead of array", func(t *testing.T) {
		path := writeFile(t, "payouts.json", `{"recipient": "x"}`)
		_, err := Load(path, FormatAuto)
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("array of scalars", func(t *testing.T) {
		path := writeFile(t, "payouts.json", `[1, 2]`)
		_, err := Load(path, FormatJSON)
		require.ErrorIs(t, err, ErrFormat)
	})

	t.Run("bad declared format", func(t *testing.T) {
		_, err := ParseFormat("xml")
		require.ErrorIs(t, err, ErrFormat)
	})
}

func TestLoadRejectsUnknownBucket(t *testing.T) {
	path := writeFile(t, "payouts.json", `[
		{"name": "Alice", "recipient": "`+aliceAddr+`", "amount": "1", "bucket": "Team"},
		{"name": "Eve", "recipient": "`+bobAddr+`", "amount": "1", "bucket": "Unknown"}
	]`)

	records, err := Load(path, FormatAuto)
	require.ErrorIs(t, err, model.ErrUnknownBucket)
	assert.Nil(t, records)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 2, verr.Row)
	assert.Equal(t, FieldBucket, verr.Field)
}

func TestValidateReportsEveryBadRow(t *testing.T) {
	rows := []Row{
		{FieldRecipient: "0x123", FieldAmount: "1", FieldBucket: "Team"},
		{FieldRecipient: aliceAddr, FieldAmount: "-5", FieldBucket: "Team"},
		{FieldRecipient: aliceAddr, FieldAmount: "abc", FieldBucket: "Team"},
		{FieldRecipient: aliceAddr, FieldBucket: "Team"},
		{FieldRecipient: aliceAddr, FieldAmount: "1", FieldBucket: "Team"},
	}

	_, err := Validate(rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidAddress)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.ErrorIs(t, err, ErrMissingField)

	msg := err.Error()
	assert.Contains(t, msg, "row 1: recipient")
	assert.Contains(t, msg, "row 2: amount")
	assert.Contains(t, msg, "row 3: amount")
	assert.Contains(t, msg, "row 4: amount")
	assert.NotContains(t, msg, "row 5")
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	rows := []Row{{FieldRecipient: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", FieldAmount: "1", FieldBucket: "Team"}}
	_, err := Validate(rows)
	require.ErrorIs(t, err, model.ErrInvalidAddress)
}

func TestValidateEmptySheet(t *testing.T) {
	_, err := Validate(nil)
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestNormalizeField(t *testing.T) {
	supported := map[string]string{
		"name":      FieldName,
		"Name":      FieldName,
		"amount":    FieldAmount,
		"AMOUNT":    FieldAmount,
		"recipient": FieldRecipient,
		"bucket":    FieldBucket,
		"Tokens":    FieldAmount,
		"Address":   FieldRecipient,
		"Bucket":    FieldBucket,
		"Category":  FieldBucket,
		" address ": FieldRecipient,
	}
	for label, want := range supported {
		assert.Equal(t, want, NormalizeField(label), label)
	}

	for _, label := range []string{"", "Notes", "Email", "wallet", "tokens2"} {
		assert.Empty(t, NormalizeField(label), label)
	}
}

func TestDuplicateColumnsFirstWins(t *testing.T) {
	rows, err := Decode(strings.NewReader("Address,recipient,amount,bucket\n"+aliceAddr+","+bobAddr+",1,team\n"), FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, aliceAddr, rows[0][FieldRecipient])
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		"1,000":                   "1000",
		" 50.5 ":                  "50.5",
		"1_000_000":               "1000000",
		"0":                       "0",
		"0.000000001":             "0.000000001",
		"0.000000000000000001":    "0.000000000000000001",
		"1.000000000000000000000": "1",
		"1e18":                    "1000000000000000000",
		strings.Repeat("9", 60):   strings.Repeat("9", 60),
	}
	for raw, want := range valid {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), raw)
	}

	invalid := []string{
		"", "abc", "-1", "1.2.3", "NaN",
		"1e2000000000",
		"1e-2000000000",
		"0.0000000000000000001",
		"1" + strings.Repeat("0", 60),
	}
	for _, raw := range invalid {
		_, err := ParseAmount(raw)
		require.ErrorIs(t, err, model.ErrInvalidAmount, raw)
	}
}

func TestMergeAddressBook(t *testing.T) {
	payouts := "Name,Tokens,Bucket\nAlice,\"1,000\",Team\nBob,50.5,Bounties\n"
	book := "Name,Address,Email\nBob," + bobAddr + ",bob@example.com\nAlice," + aliceAddr + ",alice@example.com\n"

	rows, err := MergeAddressBook(strings.NewReader(payouts), strings.NewReader(book))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ConvertedRow{Name: "Alice", Recipient: aliceAddr, Amount: "1,000", Bucket: "Team"}, rows[0])
	assert.Equal(t, ConvertedRow{Name: "Bob", Recipient: bobAddr, Amount: "50.5", Bucket: "Bounties"}, rows[1])
}

func TestMergeAddressBookUnknownName(t *testing.T) {
	payouts := "Name,Tokens,Bucket\nMallory,1,Team\n"
	book := "Name,Address\nAlice," + aliceAddr + "\n"

	_, err := MergeAddressBook(strings.NewReader(payouts), strings.NewReader(book))
	require.ErrorIs(t, err, ErrUnknownName)
}

func TestConvertOutputLoads(t *testing.T) {
	payouts := writeFile(t, "payouts.csv", "Name,Tokens,Bucket\nAlice,10,Creators\n")
	book := writeFile(t, "book.csv", "Name,Address\nAlice,"+aliceAddr+"\n")

	var buf bytes.Buffer
	n, err := Convert(payouts, book, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Creators", decoded[0]["bucket"])

	out := writeFile(t, "converted.json", buf.String())
	records, err := Load(out, FormatAuto)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.BucketCreators, records[0].Bucket)
}
