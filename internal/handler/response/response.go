package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vishesh2305/DAAN/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response. Business errors keep HTTP 200 and carry
// their code in the body; a missing session is 401 and an unknown ledger
// outcome is 202 (pending confirmation).
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData is Error with a body payload, e.g. the nonce of a pending creation.
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	code, msg := errno.Decode(err)
	c.JSON(Status(err), Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

func Status(err error) int {
	switch {
	case errors.Is(err, errno.ErrUnauthorized), errors.Is(err, errno.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, errno.ErrOutcomeUnknown):
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}
