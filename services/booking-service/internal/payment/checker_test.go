package payment

import (
	"context"
	"testing"
)

func TestSearchQuery_EscapesQuotes(t *testing.T) {
	got := searchQuery("acme's", "b-1")
	want := `status:'succeeded' AND metadata['booking_id']:'b-1' AND metadata['tenant_id']:'acme\'s'`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestStaticChecker(t *testing.T) {
	c := &StaticChecker{}
	ok, err := c.IsPaymentSatisfied(context.Background(), "t1", "b1")
	if err != nil || ok {
		t.Fatalf("expected unpaid, got %v %v", ok, err)
	}
	c.MarkPaid("t1", "b1")
	if ok, _ := c.IsPaymentSatisfied(context.Background(), "t1", "b1"); !ok {
		t.Fatalf("expected paid after MarkPaid")
	}
	if ok, _ := c.IsPaymentSatisfied(context.Background(), "t2", "b1"); ok {
		t.Fatalf("payments are scoped by tenant")
	}
}
