package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"echotree/domain/repository"
	"echotree/infrastructure/adapters"
	"echotree/infrastructure/logger"
	"echotree/usecase"
)

const ErrorUnmarshal = "Error while unmarshal"

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput),
		errors.Is(err, usecase.ErrNoActiveAccounts),
		errors.Is(err, adapters.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrNotEditable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.GetLogger().WithField("path", ctx.FullPath()).WithField("error", err).Error("request failed")
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

// idParam parses a positive int64 path parameter, writing 400 when it is not one.
func idParam(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
