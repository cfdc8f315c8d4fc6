package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/logic"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/gin-gonic/gin"
)

// maxPageSize 单页最大记录数
const maxPageSize = 500

// PayoutHandler 发放记录处理器，只读
type PayoutHandler struct {
	payoutLogic *logic.PayoutLogic
	network     chain.Network
}

// NewPayoutHandler 创建发放记录处理器
func NewPayoutHandler(repo *repository.PayoutRepository, network chain.Network) *PayoutHandler {
	return &PayoutHandler{
		payoutLogic: logic.NewPayoutLogic(repo),
		network:     network,
	}
}

// GetPayouts 分页获取发放记录，支持 status 与 bucket 过滤
func (h *PayoutHandler) GetPayouts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		ErrorResponse(c, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		ErrorResponse(c, http.StatusBadRequest, "invalid page_size")
		return
	}

	filter := logic.ListFilter{
		Status: c.Query("status"),
		Bucket: c.Query("bucket"),
	}

	records, total, err := h.payoutLogic.ListPayouts(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		if errors.Is(err, model.ErrInvalidStatus) || errors.Is(err, model.ErrUnknownBucket) {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Failed to list payouts: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "failed to list payouts")
		return
	}

	payouts := make([]PayoutResponse, 0, len(records))
	for _, record := range records {
		payouts = append(payouts, NewPayoutResponse(record, h.network))
	}

	SuccessResponse(c, http.StatusOK, "ok", PayoutListResponse{
		Payouts:    payouts,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// GetPayout 获取单条发放记录
func (h *PayoutHandler) GetPayout(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		ErrorResponse(c, http.StatusBadRequest, "invalid payout id")
		return
	}

	record, err := h.payoutLogic.GetPayout(c.Request.Context(), id)
	if err != nil {
		if logic.IsNotFound(err) {
			ErrorResponse(c, http.StatusNotFound, "payout not found")
			return
		}
		logger.Error("Failed to get payout %d: %v", id, err)
		ErrorResponse(c, http.StatusInternalServerError, "failed to get payout")
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", NewPayoutResponse(*record, h.network))
}

// GetPayoutStats 获取账本统计
func (h *PayoutHandler) GetPayoutStats(c *gin.Context) {
	stats, err := h.payoutLogic.GetStats(c.Request.Context())
	if err != nil {
		logger.Error("Failed to get payout stats: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "failed to get payout stats")
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", stats)
}
