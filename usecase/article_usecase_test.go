package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/domain/repository"
)

func TestArticleUsecase_Create(t *testing.T) {
	uc := NewArticleUsecase(&memArticles{articles: map[int64]*model.Article{}})

	a, err := uc.Create(context.Background(), dto.CreateArticleRequest{URL: " https://example.com/post "})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/post", a.URL)
	assert.Equal(t, a.URL, a.Title)

	got, err := uc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	for _, bad := range []string{"", "example.com/x", "ftp://example.com/x", "https://"} {
		_, err := uc.Create(context.Background(), dto.CreateArticleRequest{URL: bad})
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}

	_, err = uc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
