package domain

import "errors"

// Address validation errors.
var (
	ErrEmptyAddress   = errors.New("address is empty")
	ErrInvalidAddress = errors.New("address is neither a hex EVM address nor a 32-byte base58 key")
)
