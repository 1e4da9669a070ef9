package usecase

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoActiveAccounts = errors.New("no active accounts selected")
)
