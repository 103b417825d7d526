package cardledger

import (
	"context"
	"testing"
)

func TestLifecycleTransitions(t *testing.T) {
	type op func(svc *Service, ctx context.Context, cardNo string) error
	reportLoss := func(svc *Service, ctx context.Context, cardNo string) error { return svc.ReportLoss(ctx, cardNo) }
	freeze := func(svc *Service, ctx context.Context, cardNo string) error { return svc.Freeze(ctx, cardNo) }
	unloss := func(svc *Service, ctx context.Context, cardNo string) error { return svc.Unloss(ctx, cardNo) }
	unfreeze := func(svc *Service, ctx context.Context, cardNo string) error { return svc.Unfreeze(ctx, cardNo) }

	cases := []struct {
		name string
		from Status
		call op
		want Status // Empty when the call must fail with InvalidState.
	}{
		{name: "report loss from active", from: StatusActive, call: reportLoss, want: StatusLost},
		{name: "report loss from frozen", from: StatusFrozen, call: reportLoss, want: StatusLost},
		{name: "report loss again", from: StatusLost, call: reportLoss, want: StatusLost},
		{name: "report loss cancelled", from: StatusCancelled, call: reportLoss},
		{name: "freeze active", from: StatusActive, call: freeze, want: StatusFrozen},
		{name: "freeze lost", from: StatusLost, call: freeze, want: StatusFrozen},
		{name: "freeze frozen", from: StatusFrozen, call: freeze},
		{name: "freeze cancelled", from: StatusCancelled, call: freeze},
		{name: "unloss lost", from: StatusLost, call: unloss, want: StatusActive},
		{name: "unloss active", from: StatusActive, call: unloss},
		{name: "unloss frozen", from: StatusFrozen, call: unloss},
		{name: "unfreeze frozen", from: StatusFrozen, call: unfreeze, want: StatusActive},
		{name: "unfreeze active", from: StatusActive, call: unfreeze},
		{name: "unfreeze lost", from: StatusLost, call: unfreeze},
		{name: "unfreeze cancelled", from: StatusCancelled, call: unfreeze},
	}

	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := issue(t, svc, typeID, "T-"+tc.name, "5")
			setStatus(t, conn, card.CardNo, tc.from)

			errCall := tc.call(svc, ctx, card.CardNo)
			stored := loadCard(t, conn, card.CardNo)
			if tc.want == "" {
				assertKind(t, errCall, KindInvalidState)
				if stored.Status != string(tc.from) {
					t.Fatalf("rejected transition changed status to %s", stored.Status)
				}
				return
			}
			if errCall != nil {
				t.Fatalf("unexpected error: %v", errCall)
			}
			if stored.Status != string(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, stored.Status)
			}
			assertDecimal(t, "balance", stored.Balance, "5")
		})
	}

	errMissing := svc.Freeze(ctx, "C-missing")
	assertKind(t, errMissing, KindNotFound)
}

func TestMutationsRejectedOutsideActive(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")

	for _, status := range []Status{StatusLost, StatusFrozen, StatusCancelled} {
		card := issue(t, svc, typeID, "H-"+string(status), "20")
		setStatus(t, conn, card.CardNo, status)

		_, errRecharge := svc.Recharge(ctx, RechargeRequest{CardNo: card.CardNo, Amount: dec("1")})
		assertKind(t, errRecharge, KindInvalidState)
		_, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("1")})
		assertKind(t, errConsume, KindInvalidState)
		if got := len(entriesOf(t, conn, card.CardNo)); got != 1 {
			t.Fatalf("%s: expected only the issue entry, got %d", status, got)
		}
	}
}

func TestCancelWithRefundIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S3001", "50.00")

	if errCancel := svc.Cancel(ctx, CancelRequest{CardNo: card.CardNo, Refund: true}); errCancel != nil {
		t.Fatalf("cancel: %v", errCancel)
	}
	stored := loadCard(t, conn, card.CardNo)
	if stored.Status != string(StatusCancelled) {
		t.Fatalf("expected CANCELLED, got %s", stored.Status)
	}
	assertDecimal(t, "balance", stored.Balance, "0")

	entries := entriesOf(t, conn, card.CardNo)
	if len(entries) != 2 {
		t.Fatalf("expected issue and refund entries, got %d", len(entries))
	}
	refund := entries[1]
	if refund.Kind != string(TxRefund) {
		t.Fatalf("expected REFUND, got %s", refund.Kind)
	}
	assertDecimal(t, "refund amount", refund.Amount, "50.00")
	assertDecimal(t, "refund balance after", refund.BalanceAfter, "0")

	if errCancel := svc.Cancel(ctx, CancelRequest{CardNo: card.CardNo, Refund: true}); errCancel != nil {
		t.Fatalf("second cancel: %v", errCancel)
	}
	if got := len(entriesOf(t, conn, card.CardNo)); got != 2 {
		t.Fatalf("second cancel appended entries: %d", got)
	}
	assertReconciles(t, svc, card.CardNo)

	for name, call := range map[string]func() error{
		"report loss": func() error { return svc.ReportLoss(ctx, card.CardNo) },
		"unloss":      func() error { return svc.Unloss(ctx, card.CardNo) },
		"freeze":      func() error { return svc.Freeze(ctx, card.CardNo) },
	} {
		if errCall := call(); KindOf(errCall) != KindInvalidState {
			t.Fatalf("%s on cancelled card: expected InvalidState, got %v", name, errCall)
		}
	}
}

func TestCancelWithoutRefundForfeitsBalance(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S3002", "12.34")
	setStatus(t, conn, card.CardNo, StatusLost)

	if errCancel := svc.Cancel(ctx, CancelRequest{CardNo: card.CardNo}); errCancel != nil {
		t.Fatalf("cancel: %v", errCancel)
	}
	entries := entriesOf(t, conn, card.CardNo)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	writeOff := entries[1]
	if writeOff.Kind != string(TxConsume) || writeOff.Merchant != MerchantCardCenter {
		t.Fatalf("expected CARD_CENTER CONSUME write-off, got %+v", writeOff)
	}
	assertDecimal(t, "write-off amount", writeOff.Amount, "-12.34")
	assertDecimal(t, "balance", loadCard(t, conn, card.CardNo).Balance, "0")
	assertReconciles(t, svc, card.CardNo)
}

func TestCancelEmptyCardWritesNoEntry(t *testing.T) {
	svc, conn := newTestService(t)
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S3003", "0")

	if errCancel := svc.Cancel(context.Background(), CancelRequest{CardNo: card.CardNo, Refund: true}); errCancel != nil {
		t.Fatalf("cancel: %v", errCancel)
	}
	if got := len(entriesOf(t, conn, card.CardNo)); got != 0 {
		t.Fatalf("expected no entries, got %d", got)
	}
}

func TestLifecycleEventsCarryTrimmedCardNumber(t *testing.T) {
	rec := newRecorder()
	svc, conn := newTestService(t, WithPublisher(rec))
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S8001", "12")
	padded := "  " + card.CardNo + " "

	if err := svc.ReportLoss(ctx, padded); err != nil {
		t.Fatalf("report loss: %v", err)
	}
	if err := svc.Cancel(ctx, CancelRequest{CardNo: padded, Refund: true}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := 0
	for _, ev := range rec.events {
		if ev.Type != EventStatusChanged && ev.Type != EventCancelled {
			continue
		}
		seen++
		if ev.CardNo != card.CardNo {
			t.Fatalf("%s event carries card number %q, want %q", ev.Type, ev.CardNo, card.CardNo)
		}
	}
	if seen != 2 {
		t.Fatalf("expected status-changed and cancelled events, got %d", seen)
	}
}
