package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-approvisionnements/validation"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an order, supplier or article id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConstraint is returned when the store rejects a write: duplicate reference
	// or deletion of a supplier/article still referenced by an order.
	ErrConstraint = errors.New("constraint violation")
	// ErrDuplicate is the uniqueness flavour of ErrConstraint.
	ErrDuplicate = fmt.Errorf("duplicate key: %w", ErrConstraint)
	// ErrReference is the foreign key flavour of ErrConstraint: the row points
	// at a missing supplier or article, or is still referenced by an order.
	ErrReference = fmt.Errorf("broken reference: %w", ErrConstraint)
)

// ValidationError carries field-level violation codes. The write is not attempted.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, code := range e.Violations {
		fields = append(fields, f+"="+code)
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

// AsValidation unwraps a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

func invalid(v validation.Violations) error {
	return &ValidationError{Violations: v}
}

// storeError maps gorm/driver errors onto the package sentinels.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isDuplicateKey(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	case isForeignKey(err):
		return fmt.Errorf("%s: %w: %v", op, ErrReference, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

func isForeignKey(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key")
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern turns free text into a lower-cased LIKE pattern matching it
// as a literal substring. Queries must declare ESCAPE '!'.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
}
