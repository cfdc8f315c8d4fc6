package handler

import (
	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/shopspring/decimal"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// NewPagination 计算总页数
func NewPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

// PayoutResponse 发放记录响应模型
type PayoutResponse struct {
	Id        int64              `json:"id"`
	Name      string             `json:"name"`
	Recipient string             `json:"recipient"`
	Amount    decimal.Decimal    `json:"amount"`
	Bucket    string             `json:"bucket"`
	BucketId  uint8              `json:"bucketId"`
	Status    model.PayoutStatus `json:"status"`
	Txid      *string            `json:"txid"`
	TxLink    string             `json:"txLink,omitempty"`
	Success   bool               `json:"success"`
}

// NewPayoutResponse 由记录生成响应
func NewPayoutResponse(record model.PayoutRecord, network chain.Network) PayoutResponse {
	return PayoutResponse{
		Id:        record.Id,
		Name:      record.Name,
		Recipient: record.Recipient,
		Amount:    record.Amount.Decimal,
		Bucket:    record.Bucket.String(),
		BucketId:  uint8(record.Bucket),
		Status:    record.Status(),
		Txid:      record.Txid,
		TxLink:    network.TxURL(record.TxHash()),
		Success:   record.Success,
	}
}

// PayoutListResponse 发放记录列表响应模型
type PayoutListResponse struct {
	Payouts    []PayoutResponse `json:"payouts"`
	Pagination Pagination       `json:"pagination"`
}
