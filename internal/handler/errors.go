package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scip/internal/middleware"
	"scip/internal/service"
)

// respondError maps service errors onto status codes. Anything unknown is a
// 500 and is logged with the request id.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUserAlreadyExists):
		middleware.AbortWithError(c, http.StatusConflict, "User already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid credentials")
	case service.IsAuthError(err):
		middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid token")
	default:
		logger.Error(fallback, zap.String("request_id", middleware.RequestIDFrom(c)), zap.Error(err))
		middleware.AbortWithError(c, http.StatusInternalServerError, fallback)
	}
}

func bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.AbortWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	middleware.AbortWithError(c, http.StatusBadRequest, err.Error())
}
