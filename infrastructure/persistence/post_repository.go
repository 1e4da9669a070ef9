package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"echotree/domain/model"
	"echotree/domain/repository"
)

// Placeholders must first appear in ascending order: SQLite binds $n by position of first use.

const deliveryColumns = `d.id, d.post_id, d.account_id, d.status, d.external_id, d.error, d.sent_at, d.attempt_count, d.created_at, d.updated_at`

const postColumns = `p.id, p.article_id, COALESCE(a.url, ''), p.comment, p.scheduled_at, p.status, p.created_at, p.updated_at`

// PostRepository persists posts and deliveries over database/sql. Queries run on Postgres and SQLite.
type PostRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*model.Post, error) {
	p := &model.Post{}
	if err := row.Scan(&p.ID, &p.ArticleID, &p.ArticleURL, &p.Comment, &p.ScheduledAt, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func scanDelivery(row scanner, extra ...any) (*model.Delivery, error) {
	d := &model.Delivery{}
	var (
		externalID sql.NullString
		errMsg     sql.NullString
		sentAt     sql.NullTime
	)
	dest := []any{&d.ID, &d.PostID, &d.AccountID, &d.Status, &externalID, &errMsg, &sentAt, &d.AttemptCount, &d.CreatedAt, &d.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if externalID.Valid {
		d.ExternalID = &externalID.String
	}
	if errMsg.Valid {
		d.ErrorMessage = &errMsg.String
	}
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		d.SentAt = &t
	}
	return d, nil
}

func (r *PostRepository) CreateWithDeliveries(ctx context.Context, post *model.Post, accountIDs []int64) (id int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &TransactionError{Op: "create post", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = &TransactionError{Op: "create post", Err: err}
		}
	}()

	now := dbTime(r.now())
	post.Status = model.PostStatusScheduled
	err = tx.QueryRowContext(ctx,
		`INSERT INTO posts (article_id, comment, scheduled_at, status, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$5) RETURNING id`,
		post.ArticleID, post.Comment, dbTime(post.ScheduledAt), post.Status, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, accountID := range model.UniqueIDs(accountIDs) {
		if err = insertPendingDelivery(ctx, tx, id, accountID, now); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	post.ID, post.CreatedAt, post.UpdatedAt = id, now, now
	return id, nil
}

func insertPendingDelivery(ctx context.Context, tx *sql.Tx, postID, accountID int64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO deliveries (post_id, account_id, status, attempt_count, created_at, updated_at) VALUES ($1,$2,$3,0,$4,$4) ON CONFLICT (post_id, account_id) DO NOTHING`,
		postID, accountID, model.DeliveryStatusPending, now)
	return err
}

func (r *PostRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p LEFT JOIN articles a ON a.id = p.article_id WHERE p.id = $1`, postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return p, err
}

func (r *PostRepository) listPosts(ctx context.Context, q string, args ...any) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PostRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Post, error) {
	return r.listPosts(ctx, `SELECT `+postColumns+` FROM posts p LEFT JOIN articles a ON a.id = p.article_id
WHERE p.status = $1 AND p.scheduled_at <= $2 ORDER BY p.scheduled_at ASC, p.id ASC`, model.PostStatusScheduled, dbTime(now))
}

func (r *PostRepository) ListScheduled(ctx context.Context) ([]*model.Post, error) {
	return r.listPosts(ctx, `SELECT `+postColumns+` FROM posts p LEFT JOIN articles a ON a.id = p.article_id
WHERE p.status = $1 ORDER BY p.scheduled_at ASC, p.id ASC`, model.PostStatusScheduled)
}

// notEditable distinguishes a missing post from one that left the scheduled state.
func notEditable(ctx context.Context, tx *sql.Tx, postID int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = $1`, postID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return repository.ErrNotEditable
}

func (r *PostRepository) UpdateScheduled(ctx context.Context, postID int64, comment string, scheduledAt time.Time, accountIDs []int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: "edit post", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrNotEditable) {
				err = &TransactionError{Op: "edit post", Err: err}
			}
		}
	}()

	now := dbTime(r.now())
	res, err := tx.ExecContext(ctx, `UPDATE posts SET comment = $1, scheduled_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		comment, dbTime(scheduledAt), now, postID, model.PostStatusScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notEditable(ctx, tx, postID)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, account_id, status FROM deliveries WHERE post_id = $1`, postID)
	if err != nil {
		return err
	}
	var existing []model.Delivery
	for rows.Next() {
		var d model.Delivery
		if err = rows.Scan(&d.ID, &d.AccountID, &d.Status); err != nil {
			_ = rows.Close()
			return err
		}
		existing = append(existing, d)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	diff := model.DiffDeliveries(existing, accountIDs)
	for _, deliveryID := range diff.Remove {
		if _, err = tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id = $1 AND status IN ($2, $3)`,
			deliveryID, model.DeliveryStatusPending, model.DeliveryStatusFailed); err != nil {
			return err
		}
	}
	for _, accountID := range diff.Add {
		if err = insertPendingDelivery(ctx, tx, postID, accountID, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostRepository) Cancel(ctx context.Context, postID int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: "cancel post", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrNotEditable) {
				err = &TransactionError{Op: "cancel post", Err: err}
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		model.PostStatusCancelled, dbTime(r.now()), postID, model.PostStatusScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notEditable(ctx, tx, postID)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM deliveries WHERE post_id = $1 AND status IN ($2, $3)`,
		postID, model.DeliveryStatusPending, model.DeliveryStatusFailed); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostRepository) FinalizeStatus(ctx context.Context, postID int64, status model.PostStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		status, dbTime(r.now()), postID, model.PostStatusScheduled)
	return err
}

func (r *PostRepository) ListDeliveries(ctx context.Context, postID int64) ([]*model.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries d WHERE d.post_id = $1 ORDER BY d.id ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *PostRepository) ListSelectable(ctx context.Context, postID int64) ([]*model.DeliveryTarget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deliveryColumns+`, `+accountColumns+`
FROM deliveries d JOIN accounts a ON a.id = d.account_id
WHERE d.post_id = $1 AND d.status IN ($2, $3) AND a.is_active = TRUE
ORDER BY d.id ASC`, postID, model.DeliveryStatusPending, model.DeliveryStatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.DeliveryTarget
	for rows.Next() {
		a := model.Account{}
		d, err := scanDelivery(rows, &a.ID, &a.Platform, &a.DisplayName, &a.Handle, &a.CredentialEncrypted, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, &model.DeliveryTarget{Delivery: *d, Account: a})
	}
	return list, rows.Err()
}

func (r *PostRepository) CountDeliveries(ctx context.Context, postID int64) (model.DeliveryCounts, error) {
	var c model.DeliveryCounts
	err := r.db.QueryRowContext(ctx, `SELECT
COALESCE(SUM(CASE WHEN status = $1 THEN 1 ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0)
FROM deliveries WHERE post_id = $4`,
		model.DeliveryStatusPending, model.DeliveryStatusSent, model.DeliveryStatusFailed, postID).
		Scan(&c.Pending, &c.Sent, &c.Failed)
	return c, err
}

// MarkSent is a no-op for rows that are already sent.
func (r *PostRepository) MarkSent(ctx context.Context, deliveryID int64, externalID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE deliveries SET status = $1, external_id = $2, sent_at = $3, error = NULL, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $4 AND status <> $1`, model.DeliveryStatusSent, externalID, dbTime(sentAt), deliveryID)
	return err
}

func (r *PostRepository) MarkFailed(ctx context.Context, deliveryID int64, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE deliveries SET status = $1, error = $2, attempt_count = attempt_count + 1, updated_at = $3
WHERE id = $4 AND status <> $5`, model.DeliveryStatusFailed, errMsg, dbTime(r.now()), deliveryID, model.DeliveryStatusSent)
	return err
}

func (r *PostRepository) HasSentSince(ctx context.Context, accountID int64, since time.Time) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM deliveries WHERE account_id = $1 AND status = $2 AND sent_at >= $3 LIMIT 1`,
		accountID, model.DeliveryStatusSent, dbTime(since)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *PostRepository) CreateAudit(ctx context.Context, audits []*model.DeliveryAudit) error {
	if len(audits) == 0 {
		return nil
	}
	q := `INSERT INTO delivery_audit (delivery_id, post_id, account_id, platform, status, error_message, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	now := dbTime(r.now())
	for _, a := range audits {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if _, err := r.db.ExecContext(ctx, q, a.DeliveryID, a.PostID, a.AccountID, a.Platform, a.Status, a.ErrorMessage, dbTime(a.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

var _ repository.IPost = (*PostRepository)(nil)
