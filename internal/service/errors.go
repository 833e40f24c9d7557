package service

import (
	"errors"
	"fmt"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/internal/repository"
)

// ErrCartNotCleared means checkout succeeded but the cart could not be deleted afterwards.
var ErrCartNotCleared = errors.New("cart not cleared after checkout")

// translate maps storage errors onto the domain taxonomy. Unknown errors pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrMenuItemNotFound):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, repository.ErrPickupTokenTaken),
		errors.Is(err, repository.ErrIllegalStatus):
		// the status was checked under the order lock, so a store rejection means another writer won
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	default:
		return err
	}
}
