package enums

import "testing"

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		allowed  bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusOpen, PaymentStatusAuthorized, true},
		{PaymentStatusPaid, PaymentStatusRefunded, true},
		{PaymentStatusPaid, PaymentStatusDisputed, true},
		{PaymentStatusDisputed, PaymentStatusPaid, true},
		{PaymentStatusDisputed, PaymentStatusRefunded, true},
		{PaymentStatusPaid, PaymentStatusPaid, true},
		{PaymentStatusPaid, PaymentStatusPending, false},
		{PaymentStatusRefunded, PaymentStatusPaid, false},
		{PaymentStatusRefunded, PaymentStatusDisputed, false},
		{PaymentStatusVoid, PaymentStatusPaid, false},
		{PaymentStatusPending, PaymentStatusRefunded, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestBookingStatusAdvances(t *testing.T) {
	if !BookingStatusPending.Advances(BookingStatusConfirmed) {
		t.Fatal("pending -> confirmed should advance")
	}
	if !BookingStatusCompleted.Advances(BookingStatusPaid) {
		t.Fatal("completed -> paid should advance")
	}
	if BookingStatusCompleted.Advances(BookingStatusConfirmed) {
		t.Fatal("completed -> confirmed moves backwards")
	}
	if BookingStatusCancelled.Advances(BookingStatusPaid) {
		t.Fatal("cancelled bookings never move")
	}
}

func TestParsePlanIsCaseInsensitive(t *testing.T) {
	plan, err := ParsePlan(" Growth ")
	if err != nil || plan != PlanGrowth {
		t.Fatalf("expected growth, got %q err=%v", plan, err)
	}
	if _, err := ParsePlan("enterprise"); err == nil {
		t.Fatal("expected unknown plan to fail")
	}
}

func TestSubscriptionStatusHelpers(t *testing.T) {
	if !SubscriptionStatusTrialing.GrantsPlan() || SubscriptionStatusPastDue.GrantsPlan() {
		t.Fatal("only active and trialing grant the plan")
	}
	if !SubscriptionStatusCanceled.Terminal() || SubscriptionStatusUnpaid.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestDisputeStatusHelpers(t *testing.T) {
	if DisputeStatusNeedsResponse.Closed() {
		t.Fatal("needs_response is open")
	}
	if !DisputeStatusLost.Closed() || DisputeStatusLost.FavorsMerchant() {
		t.Fatal("lost is closed against the merchant")
	}
	if !DisputeStatusWon.FavorsMerchant() {
		t.Fatal("won favors the merchant")
	}
}

func TestParseMemberRole(t *testing.T) {
	role, err := ParseMemberRole("admin")
	if err != nil || role != MemberRoleAdmin {
		t.Fatalf("expected admin, got %q err=%v", role, err)
	}
	if _, err := ParseMemberRole("agent"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}
