package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/chatform/internal/ai"
	"github.com/suPer8Hu/chatform/internal/common"
	"github.com/suPer8Hu/chatform/internal/message"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// httpStatus maps a pipeline code to the response status.
func httpStatus(code message.Code) int {
	switch code {
	case message.CodeOK, message.CodeAlreadyFinalized:
		return http.StatusOK
	case message.CodeAuthRequired:
		return http.StatusUnauthorized
	case message.CodeEmptyMessage, message.CodeMessageTooLong:
		return http.StatusBadRequest
	case message.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	if code.IsGeneration() {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// failErr writes the envelope for a validation or generation error returned
// outside the pipeline.
func failErr(c *gin.Context, err error) {
	var verr *message.ValidationError
	if errors.As(err, &verr) {
		common.Fail(c, httpStatus(verr.Code), string(verr.Code), verr.Msg)
		return
	}
	var gerr *ai.Error
	if errors.As(err, &gerr) {
		code := message.Code(gerr.Kind)
		common.Fail(c, httpStatus(code), string(code), "Failed to get AI response. Details: "+gerr.Error())
		return
	}
	common.Fail(c, http.StatusInternalServerError, "InternalError", "internal server error")
}
