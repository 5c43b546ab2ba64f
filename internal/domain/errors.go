package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyTerminal = errors.New("campaign already in terminal state")
	ErrNotCompleted    = errors.New("campaign not completed")
	ErrNoVariants      = errors.New("campaign has no processed variants")
)
