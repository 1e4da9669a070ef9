package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/domain/repository"
)

type IArticleUsecase interface {
	Create(ctx context.Context, req dto.CreateArticleRequest) (*model.Article, error)
	Get(ctx context.Context, articleID int64) (*model.Article, error)
}

type ArticleUsecase struct {
	articles repository.IArticle
}

func NewArticleUsecase(articles repository.IArticle) *ArticleUsecase {
	return &ArticleUsecase{articles: articles}
}

// Create stores a manually added article. Only absolute http(s) URLs are shareable.
func (u *ArticleUsecase) Create(ctx context.Context, req dto.CreateArticleRequest) (*model.Article, error) {
	raw := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) url", ErrInvalidInput)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = raw
	}
	article := &model.Article{Title: title, URL: raw, ContentText: req.Summary}
	if _, err := u.articles.Create(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

func (u *ArticleUsecase) Get(ctx context.Context, articleID int64) (*model.Article, error) {
	return u.articles.GetByID(ctx, articleID)
}

var _ IArticleUsecase = (*ArticleUsecase)(nil)
