package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/common"
	"github.com/suPer8Hu/chatform/internal/httpapi/middleware"
	"github.com/suPer8Hu/chatform/internal/message"
	"github.com/suPer8Hu/chatform/internal/store/redisstore"
)

const IdempotencyHeader = "Idempotency-Key"

type submitReq struct {
	Message string `json:"message"`
}

type submitResp struct {
	ID           string         `json:"id"`
	Status       message.Status `json:"status"`
	ResponseText string         `json:"response_text,omitempty"`
	Truncated    bool           `json:"truncated,omitempty"`
}

func bindSubmit(c *gin.Context) (submitReq, bool) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "InvalidRequest", "invalid request body")
		return req, false
	}
	return req, true
}

func writeResult(c *gin.Context, res message.Result) {
	if res.Success {
		common.OK(c, submitResp{
			ID:           res.ID,
			Status:       res.Status,
			ResponseText: res.ResponseText,
			Truncated:    res.Truncated,
		})
		return
	}
	var data any
	if res.ID != "" {
		data = submitResp{ID: res.ID, Status: res.Status}
	}
	common.FailWith(c, httpStatus(res.Code), string(res.Code), res.Error, data)
}

// SubmitMessage runs the pipeline to completion and returns the outcome.
func (h *Handler) SubmitMessage(c *gin.Context) {
	req, ok := bindSubmit(c)
	if !ok {
		return
	}
	writeResult(c, h.Pipeline.Submit(c.Request.Context(), middleware.UserID(c), req.Message))
}

// SubmitMessageAsync records the message and queues it for the worker.
func (h *Handler) SubmitMessageAsync(c *gin.Context) {
	req, ok := bindSubmit(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))

	if key == "" || h.Idempotency == nil || uid == "" {
		writeResult(c, h.Pipeline.SubmitAsync(ctx, uid, req.Message))
		return
	}

	existing, claimed, err := h.Idempotency.Claim(ctx, uid, key)
	switch {
	case errors.Is(err, redisstore.ErrInFlight):
		common.Fail(c, http.StatusConflict, "IdempotencyConflict", "A request with this Idempotency-Key is still in progress.")
		return
	case err != nil:
		h.Log.Error("idempotency claim failed", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, "IdempotencyFailure", "Failed to check Idempotency-Key.")
		return
	case !claimed:
		c.Header("Idempotent-Replayed", "true")
		common.OK(c, submitResp{ID: existing})
		return
	}

	res := h.Pipeline.SubmitAsync(ctx, uid, req.Message)
	if res.Success {
		if err := h.Idempotency.Complete(ctx, uid, key, res.ID); err != nil {
			h.Log.Warn("idempotency complete failed", zap.String("message_id", res.ID), zap.Error(err))
		}
	} else if err := h.Idempotency.Release(ctx, uid, key); err != nil {
		h.Log.Warn("idempotency release failed", zap.String("user_id", uid), zap.Error(err))
	}
	writeResult(c, res)
}

// GetMessage returns one of the caller's records.
func (h *Handler) GetMessage(c *gin.Context) {
	rec, err := h.Records.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, message.ErrNotFound) || (err == nil && rec.UserID != middleware.UserID(c)) {
		common.Fail(c, http.StatusNotFound, "NotFound", "message not found")
		return
	}
	if err != nil {
		h.Log.Error("get message failed", zap.String("message_id", c.Param("id")), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, "StoreReadFailure", "failed to load message")
		return
	}
	common.OK(c, rec)
}

// ListMessages pages through the caller's records, newest first.
func (h *Handler) ListMessages(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			common.Fail(c, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	items, err := h.Records.ListByUser(c.Request.Context(), middleware.UserID(c), limit, c.Query("before"))
	if err != nil {
		h.Log.Error("list messages failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, "StoreReadFailure", "failed to list messages")
		return
	}

	var next string
	if len(items) == limit {
		next = items[len(items)-1].ID
	}
	common.OK(c, gin.H{"items": items, "next_before": next})
}
