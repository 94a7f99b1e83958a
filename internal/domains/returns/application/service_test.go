package application

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	invmemory "github.com/commercekit/orderflow/internal/domains/inventory/adapters/memory"
	invapp "github.com/commercekit/orderflow/internal/domains/inventory/application"
	invdomain "github.com/commercekit/orderflow/internal/domains/inventory/domain"
	ordersmemory "github.com/commercekit/orderflow/internal/domains/orders/adapters/memory"
	ordersstock "github.com/commercekit/orderflow/internal/domains/orders/adapters/stock"
	ordersapp "github.com/commercekit/orderflow/internal/domains/orders/application"
	orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"
	ordersdomain "github.com/commercekit/orderflow/internal/domains/orders/domain"
	paymentsmemory "github.com/commercekit/orderflow/internal/domains/payments/adapters/memory"
	paymentssettlement "github.com/commercekit/orderflow/internal/domains/payments/adapters/settlement"
	paymentsapp "github.com/commercekit/orderflow/internal/domains/payments/application"
	paymentstypes "github.com/commercekit/orderflow/internal/domains/payments/application/types"
	paymentsdomain "github.com/commercekit/orderflow/internal/domains/payments/domain"
	paymentsports "github.com/commercekit/orderflow/internal/domains/payments/ports"
	pricingmemory "github.com/commercekit/orderflow/internal/domains/pricing/adapters/memory"
	pricingapp "github.com/commercekit/orderflow/internal/domains/pricing/application"
	"github.com/commercekit/orderflow/internal/domains/returns/adapters/restock"
	"github.com/commercekit/orderflow/internal/domains/returns/application/types"
)

// refundingGateway completes every charge and refund so the workflow tests
// can drive the real payments service without a provider.
type refundingGateway struct {
	refundErr error
	refunds   []int64
}

func (g *refundingGateway) Name() string { return "testpay" }
func (g *refundingGateway) Limits() paymentsdomain.Limits {
	return paymentsdomain.Limits{MinAmount: 1, MaxAmount: 1_000_000, Currencies: []string{"USD"}}
}

func (g *refundingGateway) CreatePayment(_ context.Context, req paymentsports.ChargeRequest) (*paymentsports.Charge, error) {
	return &paymentsports.Charge{ProviderPaymentID: "pay-" + req.OrderID, Status: paymentsdomain.StatusCompleted}, nil
}

func (g *refundingGateway) CapturePayment(_ context.Context, providerPaymentID string) (*paymentsports.Charge, error) {
	return &paymentsports.Charge{ProviderPaymentID: providerPaymentID, Status: paymentsdomain.StatusCompleted}, nil
}

func (g *refundingGateway) RefundPayment(_ context.Context, providerPaymentID string, amount int64, _ string) (*paymentsports.Charge, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return &paymentsports.Charge{ProviderPaymentID: providerPaymentID, Status: paymentsdomain.StatusRefunded}, nil
}

func (g *refundingGateway) VerifyWebhook(http.Header, []byte) (*paymentsdomain.NormalizedEvent, error) {
	return nil, paymentsdomain.ErrBadSignature
}

func (g *refundingGateway) GetStatus(context.Context, string) (paymentsdomain.AttemptStatus, error) {
	return paymentsdomain.StatusCompleted, nil
}

type returnsFixture struct {
	svc       *Service
	orders    *ordersapp.Service
	payments  *paymentsapp.Service
	inventory *invapp.Service
	gateway   *refundingGateway
}

func newReturnsFixture(t *testing.T) *returnsFixture {
	t.Helper()
	inventory := invapp.NewService(invmemory.NewRepository())
	coordinator := ordersstock.NewCoordinator(inventory)
	pricing := pricingapp.NewService(pricingmemory.NewCouponRepository(), pricingmemory.NewTierRepository(), pricingmemory.NewLoyaltyStore(), nil)
	orders := ordersapp.NewService(ordersmemory.NewRepository(), coordinator, coordinator, pricing, nil)

	gateway := &refundingGateway{}
	payments := paymentsapp.NewService(
		paymentsmemory.NewAttemptRepository(),
		paymentsmemory.NewEventStore(),
		paymentssettlement.NewOrders(orders),
	)
	payments.RegisterGateway(gateway)

	return &returnsFixture{
		svc:       NewService(orders, payments, restock.NewInventory(inventory)),
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		gateway:   gateway,
	}
}

// paidOrder checks out, charges, and walks the order to the given status.
func (f *returnsFixture) paidOrder(t *testing.T, target ordersdomain.Status) *ordersdomain.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.inventory.SetStock(ctx, &invdomain.StockItem{
		ProductID: "sku-1", Name: "Widget", UnitPrice: 1500, Inventory: 10,
	}))
	order, err := f.orders.CreateOrder(ctx, orderstypes.CreateOrderInput{
		UserID:   "user-1",
		Currency: "USD",
		Items:    []orderstypes.CartItem{{ProductID: "sku-1", Quantity: 2}},
		Shipping: orderstypes.ShippingInput{Name: "Ada", Line1: "1 Main St", City: "Springfield", Country: "US"},
	})
	require.NoError(t, err)

	_, err = f.payments.CreatePayment(ctx, paymentstypes.CreatePaymentInput{
		Gateway:  "testpay",
		OrderID:  order.ID,
		Amount:   order.Total,
		Currency: order.Currency,
	})
	require.NoError(t, err)
	order, err = f.orders.MarkAsPaid(ctx, orderstypes.MarkAsPaidInput{
		OrderID:       order.ID,
		TransactionID: "pay-" + order.ID,
		Amount:        order.Total,
	})
	require.NoError(t, err)

	for _, status := range []ordersdomain.Status{ordersdomain.StatusProcessing, ordersdomain.StatusShipped, ordersdomain.StatusDelivered} {
		if order.Status == target {
			break
		}
		order, err = f.orders.UpdateStatus(ctx, orderstypes.UpdateStatusInput{OrderID: order.ID, Status: status, Reason: "test"})
		require.NoError(t, err)
	}
	require.Equal(t, target, order.Status)
	return order
}

func TestRequestReturn_OnlyDeliveredOrders(t *testing.T) {
	f := newReturnsFixture(t)
	order := f.paidOrder(t, ordersdomain.StatusShipped)

	_, err := f.svc.RequestReturn(context.Background(), order.ID, "wrong size")
	require.ErrorIs(t, err, ordersdomain.ErrReturnNotDelivered)
}

func TestResolveReturnRequest_ProcessRefundsAndRestocks(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	_, err := f.svc.RequestReturn(ctx, order.ID, "wrong size")
	require.NoError(t, err)
	_, err = f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionApprove})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionProcess})
	require.NoError(t, err)
	require.Equal(t, ordersdomain.StatusReturned, resolved.Status)
	require.Equal(t, []int64{order.Total}, f.gateway.refunds)

	// Refund lands back on the ledger through the payments service.
	final, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), final.RemainingPaid())

	item, err := f.inventory.Get(ctx, "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), item.Inventory)
}

func TestResolveReturnRequest_DamagedGoodsSkipRestock(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	_, err := f.svc.RequestReturn(ctx, order.ID, "arrived broken")
	require.NoError(t, err)
	_, err = f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionApprove})
	require.NoError(t, err)
	_, err = f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionProcess, Damaged: true})
	require.NoError(t, err)

	item, err := f.inventory.Get(ctx, "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(8), item.Inventory)
	require.Equal(t, int64(2), item.SoldCount)
}

func TestResolveReturnRequest_ProcessRequiresApproval(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	_, err := f.svc.RequestReturn(ctx, order.ID, "wrong size")
	require.NoError(t, err)
	_, err = f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionProcess})
	require.ErrorIs(t, err, ordersdomain.ErrReturnNotRequested)
	require.Empty(t, f.gateway.refunds)
}

func TestResolveReturnRequest_RejectLeavesOrderDelivered(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	_, err := f.svc.RequestReturn(ctx, order.ID, "changed my mind")
	require.NoError(t, err)
	resolved, err := f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionReject, Note: "outside window"})
	require.NoError(t, err)
	require.Equal(t, ordersdomain.StatusDelivered, resolved.Status)
	require.Empty(t, f.gateway.refunds)
}

func TestResolveReturnRequest_RefundFailureSurfaces(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)
	f.gateway.refundErr = errors.New("provider rejected refund")

	_, err := f.svc.RequestReturn(ctx, order.ID, "wrong size")
	require.NoError(t, err)
	_, err = f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionApprove})
	require.NoError(t, err)
	resolved, err := f.svc.ResolveReturnRequest(ctx, types.ResolveInput{OrderID: order.ID, Action: orderstypes.ReturnActionProcess})
	require.Error(t, err)
	// The return itself went through; only the refund needs reconciliation.
	require.Equal(t, ordersdomain.StatusReturned, resolved.Status)
}

func TestRefund_NoSettledCharge(t *testing.T) {
	f := newReturnsFixture(t)
	results := f.svc.BulkRefundOrders(context.Background(), []string{"order-missing"}, 500, "goodwill")
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestBulkRefundOrders_ItemsFailIndependently(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	results := f.svc.BulkRefundOrders(ctx, []string{order.ID, "order-unknown"}, 0, "recall")
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.Equal(t, 1, types.Failed(results))
	require.Equal(t, []int64{order.Total}, f.gateway.refunds)
}

func TestBulkRefundOrders_ZeroAmountMeansRemainingPaid(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	order := f.paidOrder(t, ordersdomain.StatusDelivered)

	results := f.svc.BulkRefundOrders(ctx, []string{order.ID}, 0, "recall")
	require.Equal(t, 0, types.Failed(results))

	// Nothing remains paid, so a second pass refunds nothing.
	results = f.svc.BulkRefundOrders(ctx, []string{order.ID}, 0, "recall")
	require.Equal(t, 0, types.Failed(results))
	require.Equal(t, []int64{order.Total}, f.gateway.refunds)
}

func TestBulkUpdateStatus_ReportsInvalidTransitions(t *testing.T) {
	f := newReturnsFixture(t)
	ctx := context.Background()
	pending := f.paidOrder(t, ordersdomain.StatusPending)

	results := f.svc.BulkUpdateStatus(ctx, []string{pending.ID, "order-unknown"}, ordersdomain.StatusProcessing, "batch release")
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)

	updated, err := f.orders.GetOrder(ctx, pending.ID)
	require.NoError(t, err)
	require.Equal(t, ordersdomain.StatusProcessing, updated.Status)

	results = f.svc.BulkUpdateStatus(ctx, []string{pending.ID}, ordersdomain.StatusDelivered, "skip ahead")
	require.ErrorIs(t, results[0].Err, ordersdomain.ErrInvalidTransition)
}
