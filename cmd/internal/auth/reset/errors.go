package reset

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("reset grant not found")
	ErrAlreadyUsed  = errors.New("reset grant already used")
	ErrExpired      = errors.New("reset grant expired")
)
