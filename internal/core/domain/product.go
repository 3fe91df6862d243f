package domain

import "time"

type Product struct {
	ID          string
	Title       string
	Price       int64 // minor currency units
	Stock       int
	Category    string
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ProductFilter struct {
	Category      string
	AvailableOnly bool
}

// Matches reports whether p passes the filter.
func (f ProductFilter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.AvailableOnly && !p.IsAvailable {
		return false
	}
	return true
}
