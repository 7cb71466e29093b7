package services

import (
	"context"
	"errors"
	"strings"

	"github.com/vitrinehub/api/internal/repositories"
)

var (
	// ErrStoreNotFound indicates the requested store does not exist.
	ErrStoreNotFound = errors.New("store service: not found")
	// ErrStoreInvalidInput indicates the caller supplied invalid input.
	ErrStoreInvalidInput = errors.New("store service: invalid input")
	// ErrStoreUnavailable indicates the store backend cannot fulfil the request.
	ErrStoreUnavailable = errors.New("store service: unavailable")
)

// StoreServiceDeps wires the repository dependency for store lookups.
type StoreServiceDeps struct {
	Repository repositories.StoreRepository
}

type storeService struct {
	repo repositories.StoreRepository
}

// NewStoreService constructs a StoreService enforcing dependency validation.
func NewStoreService(deps StoreServiceDeps) (StoreService, error) {
	if deps.Repository == nil {
		return nil, errors.New("store service: repository is required")
	}
	return &storeService{repo: deps.Repository}, nil
}

// GetStore resolves a tenant by id or slug.
func (s *storeService) GetStore(ctx context.Context, storeID string) (Store, error) {
	sid := strings.TrimSpace(storeID)
	if sid == "" {
		return Store{}, ErrStoreInvalidInput
	}

	store, err := s.repo.GetStore(ctx, sid)
	if err == nil {
		return store, nil
	}
	if !isRepoNotFound(err) {
		return Store{}, translateStoreRepoError(err)
	}

	store, err = s.repo.GetStoreBySlug(ctx, sid)
	if err != nil {
		return Store{}, translateStoreRepoError(err)
	}
	return store, nil
}

func translateStoreRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrStoreNotFound
		case repoErr.IsUnavailable():
			return ErrStoreUnavailable
		}
	}
	return ErrStoreUnavailable
}
