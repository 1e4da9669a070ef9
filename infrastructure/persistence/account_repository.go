package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"echotree/domain/model"
	"echotree/domain/repository"
)

const accountColumns = `a.id, a.platform, a.display_name, a.handle, a.credential_encrypted, a.is_active, a.created_at, a.updated_at`

type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

func scanAccount(row scanner) (*model.Account, error) {
	a := &model.Account{}
	if err := row.Scan(&a.ID, &a.Platform, &a.DisplayName, &a.Handle, &a.CredentialEncrypted, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) (int64, error) {
	now := dbTime(r.now())
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (platform, display_name, handle, credential_encrypted, is_active, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$6) RETURNING id`,
		account.Platform, account.DisplayName, account.Handle, account.CredentialEncrypted, account.IsActive, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	account.ID, account.CreatedAt, account.UpdatedAt = id, now, now
	return id, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, accountID int64) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return a, err
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts a ORDER BY a.platform ASC, a.display_name ASC, a.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *AccountRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM accounts WHERE is_active = TRUE ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AccountRepository) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) SetActive(ctx context.Context, accountID int64, active bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_active = $1, updated_at = $2 WHERE id = $3`, active, dbTime(r.now()), accountID)
}

func (r *AccountRepository) UpdateCredential(ctx context.Context, accountID int64, encrypted string) error {
	return r.exec(ctx, `UPDATE accounts SET credential_encrypted = $1, updated_at = $2 WHERE id = $3`, encrypted, dbTime(r.now()), accountID)
}

var _ repository.IAccount = (*AccountRepository)(nil)
