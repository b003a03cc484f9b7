// Package model defines domain entities for the application.
package model

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
)

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage bounds the row offset well inside a PostgreSQL bigint.
	MaxPage = 1_000_000
)

// Page is a normalized page/limit request.
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps page and limit into their allowed ranges. Pages past
// MaxPage read as MaxPage, which is empty for any realistic table.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page > MaxPage {
		page = MaxPage
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination is returned alongside list responses.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination computes page count for total rows.
func NewPagination(p Page, total int64) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects field errors. A nil or empty list is not an error.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// Required records an error when value is blank.
func (v *ValidationErrors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "is required")
	}
}

// Email records an error when value is set but not an address.
func (v *ValidationErrors) Email(field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v.Add(field, "must be a valid email address")
	}
}

// MaxLen records an error when value exceeds n characters.
func (v *ValidationErrors) MaxLen(field, value string, n int) {
	if len([]rune(value)) > n {
		v.Add(field, fmt.Sprintf("must be at most %d characters", n))
	}
}

// OneOf records an error when value is not among allowed.
func OneOf[T ~string](v *ValidationErrors, field string, value T, allowed []T) {
	if !slices.Contains(allowed, value) {
		names := make([]string, len(allowed))
		for i, a := range allowed {
			names[i] = string(a)
		}
		v.Add(field, "must be one of: "+strings.Join(names, ", "))
	}
}

// Err returns the collected errors or nil.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Currencies accepted for monetary records.
var Currencies = []string{"USD", "EUR", "GBP", "ZAR", "NGN", "KES", "INR", "AUD"}

// ValidCurrency checks ISO code membership.
func ValidCurrency(c string) bool {
	return slices.Contains(Currencies, c)
}
