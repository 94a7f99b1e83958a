package server

import (
	"errors"

	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	invports "github.com/commercekit/orderflow/internal/domains/inventory/ports"
	ordersapp "github.com/commercekit/orderflow/internal/domains/orders/application"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	ordersports "github.com/commercekit/orderflow/internal/domains/orders/ports"
	paymentsapp "github.com/commercekit/orderflow/internal/domains/payments/application"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
	pricingdomain "github.com/commercekit/orderflow/internal/domains/pricing/domain"
	returnsapp "github.com/commercekit/orderflow/internal/domains/returns/application"
	apierrors "github.com/commercekit/orderflow/internal/shared/errors"
)

// newResponder builds the error mapper chain translating domain and
// application sentinels into RFC 7807 problems.
func newResponder() *apierrors.Responder {
	return apierrors.NewChainedResponder("",
		mapNotFound,
		mapValidation,
		mapStateConflicts,
		mapPricing,
		mapPayments,
	)
}

func mapNotFound(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, ordersports.ErrNotFound),
		errors.Is(err, invports.ErrNotFound),
		errors.Is(err, paymentsports.ErrNotFound),
		errors.Is(err, paymentsdomain.ErrUnknownGateway):
		return apierrors.ErrNotFound.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func mapValidation(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, ordersapp.ErrInvalidInput),
		errors.Is(err, invdomain.ErrInvalidQuantity):
		return apierrors.ErrValidation.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func mapStateConflicts(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, ordersdomain.ErrInvalidTransition),
		errors.Is(err, ordersdomain.ErrInvalidStatus):
		return apierrors.ErrInvalidTransition.WithDetail(err.Error()), true
	case errors.Is(err, invdomain.ErrInsufficientStock):
		return apierrors.ErrInsufficientStock.WithDetail(err.Error()), true
	case errors.Is(err, ordersdomain.ErrNotCancellable),
		errors.Is(err, ordersdomain.ErrAlreadyCancelled),
		errors.Is(err, ordersdomain.ErrEmptySplit),
		errors.Is(err, ordersdomain.ErrReturnNotDelivered),
		errors.Is(err, ordersdomain.ErrReturnAlreadyOpen),
		errors.Is(err, ordersdomain.ErrReturnNotRequested),
		errors.Is(err, ordersdomain.ErrRefundExceedsPaid),
		errors.Is(err, ordersports.ErrVersionConflict),
		errors.Is(err, ordersapp.ErrComplianceHold),
		errors.Is(err, paymentsapp.ErrRefundExceedsPaid),
		errors.Is(err, returnsapp.ErrNoSettledCharge):
		return apierrors.ErrConflict.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func mapPricing(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, pricingdomain.ErrCouponInvalid),
		errors.Is(err, pricingdomain.ErrCouponExpired),
		errors.Is(err, pricingdomain.ErrCouponNotApplicable),
		errors.Is(err, pricingdomain.ErrInsufficientPoints),
		errors.Is(err, pricingdomain.ErrPointsExceedTotal):
		return apierrors.ErrCoupon.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}

func mapPayments(err error) (apierrors.ProblemDetail, bool) {
	switch {
	case errors.Is(err, paymentsdomain.ErrCurrencyNotSupported),
		errors.Is(err, paymentsdomain.ErrAmountOutOfRange):
		return apierrors.ErrPaymentLimits.WithDetail(err.Error()), true
	case errors.Is(err, paymentsdomain.ErrBadSignature),
		errors.Is(err, paymentsdomain.ErrMalformedEvent):
		return apierrors.ErrBadRequest.WithDetail(err.Error()), true
	case errors.Is(err, paymentsdomain.ErrProvider):
		return apierrors.ErrPaymentProvider.WithDetail(err.Error()), true
	}
	return apierrors.ProblemDetail{}, false
}
