package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echotree/domain/dto"
	"echotree/infrastructure/logger"
	"echotree/interfaces/middleware"
	"echotree/usecase"
)

type IPostHandler interface {
	SubmitToken(ctx *gin.Context)
	Submit(ctx *gin.Context)
	ListScheduled(ctx *gin.Context)
	Details(ctx *gin.Context)
	Edit(ctx *gin.Context)
	Cancel(ctx *gin.Context)
	PublishNow(ctx *gin.Context)
	PublishDue(ctx *gin.Context)
}

type PostHandler struct {
	scheduleUsecase usecase.IScheduleUsecase
	publishUsecase  usecase.IPublishUsecase
}

func NewPostHandler(schedule usecase.IScheduleUsecase, publish usecase.IPublishUsecase) IPostHandler {
	return &PostHandler{scheduleUsecase: schedule, publishUsecase: publish}
}

func (h *PostHandler) SubmitToken(ctx *gin.Context) {
	token, err := h.scheduleUsecase.IssueSubmitToken(ctx.Request.Context(), ctx.GetString(middleware.SessionKey))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"submit_token": token})
}

// Submit always answers 200 for domain outcomes; the status field carries duplicate and invalid results.
func (h *PostHandler) Submit(ctx *gin.Context) {
	var req dto.SubmitPostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithField("error", err).Warn(ErrorUnmarshal)
		ctx.JSON(http.StatusBadRequest, dto.SubmitPostResult{Status: dto.SubmitStatusInvalidInput, Deliveries: []dto.DeliveryDetail{}})
		return
	}
	res, err := h.scheduleUsecase.Submit(ctx.Request.Context(), ctx.GetString(middleware.SessionKey), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

func (h *PostHandler) ListScheduled(ctx *gin.Context) {
	list, err := h.scheduleUsecase.ListScheduled(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"posts": list})
}

func (h *PostHandler) Details(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	details, err := h.scheduleUsecase.Details(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, details)
}

func (h *PostHandler) Edit(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req dto.EditPostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.scheduleUsecase.Edit(ctx.Request.Context(), id, req); err != nil {
		respondError(ctx, err)
		return
	}
	h.Details(ctx)
}

func (h *PostHandler) Cancel(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.scheduleUsecase.Cancel(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"post_id": id, "status": "cancelled"})
}

func (h *PostHandler) PublishNow(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	report, err := h.publishUsecase.PublishPost(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (h *PostHandler) PublishDue(ctx *gin.Context) {
	report, err := h.publishUsecase.PublishDue(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}
