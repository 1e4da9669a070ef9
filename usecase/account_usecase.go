package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/domain/repository"
	"echotree/infrastructure/adapters"
	"echotree/infrastructure/logger"
)

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type IAccountUsecase interface {
	Create(ctx context.Context, req dto.CreateAccountRequest) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	Toggle(ctx context.Context, accountID int64) (*model.Account, error)
	SaveCredential(ctx context.Context, accountID int64, plaintext string) error
}

// AccountUsecase manages connected accounts. It also persists refreshed credentials for adapters.
type AccountUsecase struct {
	accounts repository.IAccount
	codec    Encrypter
}

func NewAccountUsecase(accounts repository.IAccount, codec Encrypter) *AccountUsecase {
	return &AccountUsecase{accounts: accounts, codec: codec}
}

// BuildCredential shapes the plaintext credential stored for a platform.
func BuildCredential(p model.Platform, req dto.CreateAccountRequest) (string, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return "", fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	var payload any
	switch p {
	case model.PlatformTwitter:
		if req.TokenSecret != "" {
			payload = map[string]string{"type": "oauth1", "token": token, "secret": req.TokenSecret}
		}
	case model.PlatformBluesky:
		if req.RefreshJwt != "" {
			payload = adapters.BlueskySession{AccessJwt: token, RefreshJwt: req.RefreshJwt, Handle: req.Handle}
		}
	case model.PlatformMastodon, model.PlatformLinkedIn:
	}
	if payload == nil {
		return token, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (u *AccountUsecase) Create(ctx context.Context, req dto.CreateAccountRequest) (*model.Account, error) {
	platform, ok := model.ParsePlatform(req.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %q", adapters.ErrUnsupportedPlatform, req.Platform)
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = strings.TrimSpace(req.Handle)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	plaintext, err := BuildCredential(platform, req)
	if err != nil {
		return nil, err
	}
	blob, err := u.codec.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Platform:            platform,
		DisplayName:         name,
		Handle:              strings.TrimSpace(req.Handle),
		CredentialEncrypted: blob,
		IsActive:            req.IsActive == nil || *req.IsActive,
	}
	if _, err := u.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	logger.GetLogger().WithField("account_id", account.ID).WithField("platform", platform).Info("account connected")
	return account, nil
}

func (u *AccountUsecase) List(ctx context.Context) ([]*model.Account, error) {
	return u.accounts.List(ctx)
}

func (u *AccountUsecase) Toggle(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := u.accounts.SetActive(ctx, accountID, !account.IsActive); err != nil {
		return nil, err
	}
	account.IsActive = !account.IsActive
	return account, nil
}

func (u *AccountUsecase) SaveCredential(ctx context.Context, accountID int64, plaintext string) error {
	blob, err := u.codec.Encrypt(plaintext)
	if err != nil {
		return err
	}
	return u.accounts.UpdateCredential(ctx, accountID, blob)
}

var (
	_ IAccountUsecase           = (*AccountUsecase)(nil)
	_ adapters.CredentialWriter = (*AccountUsecase)(nil)
)
