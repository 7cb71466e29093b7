package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vitrinehub/api/internal/domain"
	pfirestore "github.com/vitrinehub/api/internal/platform/firestore"
	"github.com/vitrinehub/api/internal/repositories"
)

const storeCollection = "stores"

// StoreRepository resolves tenant records from Firestore.
type StoreRepository struct {
	base *pfirestore.BaseRepository[storeDocument]
}

// NewStoreRepository constructs a Firestore-backed store repository.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	return &StoreRepository{
		base: pfirestore.NewBaseRepository[storeDocument](provider, storeCollection, nil, nil),
	}, nil
}

// GetStore loads a store by document id.
func (r *StoreRepository) GetStore(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	sid := strings.TrimSpace(storeID)
	if sid == "" {
		return domain.Store{}, errors.New("store repository: store id is required")
	}
	doc, err := r.base.Get(ctx, sid)
	if err != nil {
		return domain.Store{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetStoreBySlug resolves a store by its public storefront slug.
func (r *StoreRepository) GetStoreBySlug(ctx context.Context, slug string) (domain.Store, error) {
	if r == nil || r.base == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if normalized == "" {
		return domain.Store{}, notFoundError("stores.get_by_slug")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Store{}, err
	}
	if len(docs) == 0 {
		return domain.Store{}, notFoundError("stores.get_by_slug")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

type storeDocument struct {
	Slug      string    `firestore:"slug"`
	Name      string    `firestore:"name"`
	Currency  string    `firestore:"currency"`
	Locale    string    `firestore:"locale,omitempty"`
	IsActive  bool      `firestore:"isActive"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (doc storeDocument) toDomain(id string) domain.Store {
	return domain.Store{
		ID:        id,
		Slug:      doc.Slug,
		Name:      doc.Name,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Locale:    doc.Locale,
		IsActive:  doc.IsActive,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

var _ repositories.StoreRepository = (*StoreRepository)(nil)
