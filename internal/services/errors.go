package services

import "errors"

var (
	ErrEmptyMessage     = errors.New("message must not be empty")
	ErrMissingThread    = errors.New("thread_id is required")
	ErrEmptyQuery       = errors.New("query must not be empty")
	ErrIndexUnavailable = errors.New("document index unavailable")
	ErrNotPDF           = errors.New("file must be a PDF")
	ErrNoFiles          = errors.New("no files provided")
	ErrTooManyFiles     = errors.New("too many files")
	ErrInvalidPDF       = errors.New("invalid PDF")
	ErrNoText           = errors.New("PDF contains no readable text")
)
