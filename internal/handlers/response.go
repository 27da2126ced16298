package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/driftchat-backend/internal/apierr"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func RespondOK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusCreated, payload)
}

// RespondError maps any error onto the envelope; unknown errors come
// out as 500 internal_server_error via apierr.From.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	c.JSON(ae.Status, errorEnvelope{Error: errorBody{Message: ae.Error(), Code: ae.Code}})
}

func RespondUnauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, errorEnvelope{Error: errorBody{Message: msg, Code: "unauthorized"}})
}
