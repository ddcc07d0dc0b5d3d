// Package payment answers whether a booking's payment precondition is met.
// Capturing and refunding payments happens elsewhere.
package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

type Checker interface {
	IsPaymentSatisfied(ctx context.Context, tenantID, bookingID string) (bool, error)
}

// StripeChecker treats a booking as paid once a PaymentIntent tagged with its
// booking_id and tenant_id metadata has succeeded.
type StripeChecker struct {
	client paymentintent.Client
}

func NewStripeChecker(secretKey string) *StripeChecker {
	return &StripeChecker{client: paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: strings.TrimSpace(secretKey),
	}}
}

func (c *StripeChecker) IsPaymentSatisfied(ctx context.Context, tenantID, bookingID string) (bool, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = searchQuery(tenantID, bookingID)
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := c.client.Search(params)
	for it.Next() {
		if pi := it.PaymentIntent(); pi != nil && pi.Status == stripe.PaymentIntentStatusSucceeded {
			return true, nil
		}
	}
	if err := it.Err(); err != nil {
		return false, fmt.Errorf("%w: payment status lookup: %v", model.ErrUnavailable, err)
	}
	return false, nil
}

func searchQuery(tenantID, bookingID string) string {
	return fmt.Sprintf("status:'succeeded' AND metadata['booking_id']:'%s' AND metadata['tenant_id']:'%s'",
		quote(bookingID), quote(tenantID))
}

func quote(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}

// StaticChecker answers from memory. Bookings not marked paid fall back to
// Default. It backs local runs without a payment provider.
type StaticChecker struct {
	Default bool

	mu   sync.RWMutex
	paid map[string]bool
}

func (c *StaticChecker) MarkPaid(tenantID, bookingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paid == nil {
		c.paid = map[string]bool{}
	}
	c.paid[tenantID+"/"+bookingID] = true
}

func (c *StaticChecker) IsPaymentSatisfied(_ context.Context, tenantID, bookingID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paid[tenantID+"/"+bookingID] {
		return true, nil
	}
	return c.Default, nil
}
