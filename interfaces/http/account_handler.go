package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/usecase"
)

type IAccountHandler interface {
	List(ctx *gin.Context)
	Create(ctx *gin.Context)
	Toggle(ctx *gin.Context)
	Platforms(ctx *gin.Context)
}

type AccountHandler struct {
	accountUsecase usecase.IAccountUsecase
	platforms      []model.Platform
}

func NewAccountHandler(uc usecase.IAccountUsecase, platforms []model.Platform) IAccountHandler {
	return &AccountHandler{accountUsecase: uc, platforms: platforms}
}

func (h *AccountHandler) List(ctx *gin.Context) {
	list, err := h.accountUsecase.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	if list == nil {
		list = []*model.Account{}
	}
	ctx.JSON(http.StatusOK, gin.H{"accounts": list})
}

func (h *AccountHandler) Create(ctx *gin.Context) {
	var req dto.CreateAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, err := h.accountUsecase.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) Toggle(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	account, err := h.accountUsecase.Toggle(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, account)
}

func (h *AccountHandler) Platforms(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"platforms": h.platforms})
}
