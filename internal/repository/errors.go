package repository

import "errors"

var (
	ErrMailRecordNotFound = errors.New("mail record not found")
	ErrInvalidInput       = errors.New("invalid input parameters")
)
