package services

import "errors"

var (
	// ErrPromotionRepositoryMissing indicates the promotion repository dependency is absent.
	ErrPromotionRepositoryMissing = errors.New("promotion service: repository is not configured")
	// ErrPromotionInvalidInput signals the supplied promotion payload is missing or invalid.
	ErrPromotionInvalidInput = errors.New("promotion service: invalid input")
	// ErrPromotionNotFound indicates no promotion exists for the provided code or id.
	ErrPromotionNotFound = errors.New("promotion service: promotion not found")
	// ErrPromotionConflict indicates the promotion could not be written due to a concurrent update.
	ErrPromotionConflict = errors.New("promotion service: conflict")
	// ErrPromotionUnavailable indicates the promotion backend cannot fulfil the request.
	ErrPromotionUnavailable = errors.New("promotion service: unavailable")
)
