package service

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDuplicateIdentifier = errors.New("identifier already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrGameNotFound        = errors.New("game not found or not owned by publisher")
	ErrUnknownRole         = errors.New("unknown role")
)
