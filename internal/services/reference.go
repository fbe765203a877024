package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/diewo77/go-approvisionnements/internal/models"
	"gorm.io/gorm"
)

// ReferencePrefix returns the reference prefix for a year, e.g. "APP-2024-".
func ReferencePrefix(year int) string {
	return fmt.Sprintf("APP-%d-", year)
}

// NextReference returns the reference following the highest existing one for year.
// Format: APP-YYYY-NNN (at least three digits; the field grows past 999).
// References of other years and unparsable suffixes are ignored.
func NextReference(year int, existing []string) string {
	prefix := ReferencePrefix(year)
	best := ""
	for _, ref := range existing {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		seq := ref[len(prefix):]
		if !isDigits(seq) {
			continue
		}
		// Equal-width codes compare lexicographically; a longer suffix is a larger number.
		if len(seq) > len(best) || (len(seq) == len(best) && seq > best) {
			best = seq
		}
	}
	next := 1
	if best != "" {
		if n, err := strconv.Atoi(best); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, next)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// nextReference reads the references already issued for year and derives the next one.
func nextReference(ctx context.Context, tx *gorm.DB, year int) (string, error) {
	var refs []string
	err := tx.WithContext(ctx).Model(&models.Order{}).
		Where("reference LIKE ?", ReferencePrefix(year)+"%").
		Pluck("reference", &refs).Error
	if err != nil {
		return "", fmt.Errorf("load references: %w", err)
	}
	return NextReference(year, refs), nil
}
