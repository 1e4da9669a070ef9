package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echotree/domain/dto"
	"echotree/usecase"
)

type IArticleHandler interface {
	Create(ctx *gin.Context)
	Get(ctx *gin.Context)
}

type ArticleHandler struct {
	articleUsecase usecase.IArticleUsecase
}

func NewArticleHandler(uc usecase.IArticleUsecase) IArticleHandler {
	return &ArticleHandler{articleUsecase: uc}
}

func (h *ArticleHandler) Create(ctx *gin.Context) {
	var req dto.CreateArticleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	article, err := h.articleUsecase.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, article)
}

func (h *ArticleHandler) Get(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	article, err := h.articleUsecase.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, article)
}
