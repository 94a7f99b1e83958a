package application

import (
	"errors"
	"fmt"

	"github.com/commercekit/orderflow/internal/domains/orders/domain"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput = errors.New("invalid order input")
	// ErrComplianceHold signals the order is flagged and automatic processing is halted.
	ErrComplianceHold = errors.New("order is on compliance hold")
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNoItems) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidPrice) ||
		errors.Is(err, domain.ErrInvalidCurrency) ||
		errors.Is(err, domain.ErrInvalidAddress) ||
		errors.Is(err, domain.ErrInvalidStatus) ||
		errors.Is(err, domain.ErrEmptySplit) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
