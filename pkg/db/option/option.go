package option

import "gorm.io/gorm"

// QueryOption narrows or shapes a repository query.
type QueryOption func(tx *gorm.DB) *gorm.DB

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	}
}

func WithOffset(offset int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	}
}

// WithOrder applies a raw order clause, e.g. "created_at DESC".
func WithOrder(order string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(order)
	}
}

// WithCondition adds an extra where clause beyond the struct query, for
// predicates a zero-value-skipping struct match cannot express.
func WithCondition(query string, args ...any) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(query, args...)
	}
}

func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}
