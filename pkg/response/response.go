package response

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
)

// ErrorBody is the JSON body of every failed request.
// Clients only rely on Error; Code and RequestID help with support tickets.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success sends the payload as the response body
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, ErrorBody{
		Error:     errorMessage,
		Code:      errorCode,
		RequestID: getRequestID(c),
	})
}

// FromError renders any error, using the AppError status and message when present.
// Unclassified errors become a 500 and are logged with their cause.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.StatusCode >= 500 {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}
	Error(c, appErr.StatusCode, string(appErr.Code), appErr.Message)
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, 400, string(apperrors.ErrCodeValidation), message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, 500, string(apperrors.ErrCodeInternal), message)
}

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
