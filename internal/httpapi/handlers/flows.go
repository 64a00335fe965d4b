package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/chatform/internal/common"
	"github.com/suPer8Hu/chatform/internal/httpapi/middleware"
)

func (h *Handler) Summarize(c *gin.Context) {
	req, ok := bindSubmit(c)
	if !ok {
		return
	}
	summary, err := h.Flows.Summarize(c.Request.Context(), middleware.UserID(c), req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"summary": summary})
}

func (h *Handler) SuggestEdits(c *gin.Context) {
	req, ok := bindSubmit(c)
	if !ok {
		return
	}
	edits, err := h.Flows.SuggestEdits(c.Request.Context(), middleware.UserID(c), req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, edits)
}
