package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"echotree/domain/model"
	"echotree/domain/repository"
)

// ArticleRepository reads articles written by feed ingestion.
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) GetByID(ctx context.Context, articleID int64) (*model.Article, error) {
	a := &model.Article{}
	var feedID sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, feed_id, title, url, content_html, content_text, created_at FROM articles WHERE id = $1`, articleID).
		Scan(&a.ID, &feedID, &a.Title, &a.URL, &a.ContentHTML, &a.ContentText, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.FeedID = feedID.Int64
	return a, nil
}

// Create stores a manually added article.
func (r *ArticleRepository) Create(ctx context.Context, article *model.Article) (int64, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now()
	}
	var feedID sql.NullInt64
	if article.FeedID > 0 {
		feedID = sql.NullInt64{Int64: article.FeedID, Valid: true}
	}
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (feed_id, title, url, content_html, content_text, created_at) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		feedID, article.Title, article.URL, article.ContentHTML, article.ContentText, dbTime(article.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, err
	}
	article.ID = id
	return id, nil
}

var _ repository.IArticle = (*ArticleRepository)(nil)
