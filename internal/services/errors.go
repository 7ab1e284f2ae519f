package services

import (
	"errors"
	"fmt"

	"lounge_backend/internal/repositories"
)

// Error taxonomy of the billing engine. Handlers map each to an HTTP status.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("operation not permitted")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError carries the shortfall of a rejected posting.
type InsufficientStockError struct {
	ItemID    int64
	ItemName  string
	Required  float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item '%s' (ID %d): required %g, available %g",
		e.ItemName, e.ItemID, e.Required, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// fromRepo translates repository sentinels into the service taxonomy.
func fromRepo(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repositories.ErrDuplicateKey), errors.Is(err, repositories.ErrReferenced):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
