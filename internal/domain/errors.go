package domain

import "errors"

var (
	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexMismatch     = errors.New("index and mapping do not match")
	ErrEmptyCorpus       = errors.New("no chunks created")
	ErrRerankUnavailable = errors.New("reranker unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
