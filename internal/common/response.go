package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes the success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "ok",
		"data":    data,
	})
}

// Fail writes the error envelope. code is a stable machine readable string.
func Fail(c *gin.Context, httpStatus int, code string, msg string) {
	FailWith(c, httpStatus, code, msg, nil)
}

// FailWith is Fail with a data payload, e.g. the id of a record that was
// created before the failure.
func FailWith(c *gin.Context, httpStatus int, code string, msg string, data any) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    data,
	})
}
