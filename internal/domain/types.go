package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Store is a tenant in the multi-seller catalog. Each store owns its own
// promotion set, carts, and coupon codes.
type Store struct {
	ID        string
	Slug      string
	Name      string
	Currency  string
	Locale    string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultStockLimit caps line quantities when the catalog does not provide
// an explicit per-product stock limit.
const DefaultStockLimit = 99

// CartLine is one row in a session cart. UnitPrice is snapshotted at add
// time in minor currency units and never recomputed from the catalog.
type CartLine struct {
	ProductID  string
	VariantID  string
	SKU        string
	Name       string
	ImageURL   string
	UnitPrice  int64
	Quantity   int
	StockLimit *int
	AddedAt    time.Time
}

// IdentityKey returns the merge/lookup key for the line: the variant when
// present, else the SKU, else the product. A cart holds at most one line per
// identity key.
func (l CartLine) IdentityKey() string {
	if v := strings.TrimSpace(l.VariantID); v != "" {
		return v
	}
	if s := strings.TrimSpace(l.SKU); s != "" {
		return s
	}
	return strings.TrimSpace(l.ProductID)
}

// MaxQuantity returns the clamp ceiling for quantity updates.
func (l CartLine) MaxQuantity() int {
	if l.StockLimit != nil && *l.StockLimit > 0 {
		return *l.StockLimit
	}
	return DefaultStockLimit
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (l CartLine) LineTotal() int64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// AppliedCoupon records the coupon a shopper activated for the session. The
// discount is never stored with it; every read recomputes against the
// current subtotal.
type AppliedCoupon struct {
	Code      string
	Promotion Promotion
	AppliedAt time.Time
}

// SessionCartState is the single owned cart object for one store session:
// the lines plus the optionally applied coupon. It is passed into the
// pricing engine explicitly rather than living as ambient state.
type SessionCartState struct {
	StoreID   string
	SessionID string
	Lines     []CartLine
	Coupon    *AppliedCoupon
	UpdatedAt time.Time
}

// Subtotal sums UnitPrice multiplied by Quantity over all lines.
func (s SessionCartState) Subtotal() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.LineTotal()
	}
	return total
}

// TotalQuantity sums the quantities over all lines.
func (s SessionCartState) TotalQuantity() int {
	var total int
	for _, line := range s.Lines {
		if line.Quantity > 0 {
			total += line.Quantity
		}
	}
	return total
}

// IsEmpty reports whether the cart holds no lines.
func (s SessionCartState) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Health statuses reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
