package cardledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/campus-card/cardledger/internal/models"
)

func TestIssueConsumeFreezeScenario(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")

	card := issue(t, svc, typeID, "S1001", "100.00")

	info, errBalance := svc.GetBalance(ctx, card.CardNo)
	if errBalance != nil {
		t.Fatalf("get balance: %v", errBalance)
	}
	assertDecimal(t, "balance after issue", info.Balance, "100.00")
	if info.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", info.Status)
	}
	entries := entriesOf(t, conn, card.CardNo)
	if len(entries) != 1 || entries[0].Kind != string(TxRecharge) || entries[0].Merchant != MerchantSystemIssue {
		t.Fatalf("expected one system RECHARGE entry, got %+v", entries)
	}
	assertDecimal(t, "issue entry amount", entries[0].Amount, "100")

	balance, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("30.00"), Merchant: "canteen"})
	if errConsume != nil {
		t.Fatalf("consume: %v", errConsume)
	}
	assertDecimal(t, "balance after consume", balance, "70.00")
	entries = entriesOf(t, conn, card.CardNo)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	assertDecimal(t, "consume amount", entries[1].Amount, "-30.00")
	assertDecimal(t, "consume balance after", entries[1].BalanceAfter, "70.00")
	if entries[1].Merchant != "canteen" {
		t.Fatalf("expected merchant canteen, got %q", entries[1].Merchant)
	}

	if errFreeze := svc.Freeze(ctx, card.CardNo); errFreeze != nil {
		t.Fatalf("freeze: %v", errFreeze)
	}
	_, errConsume = svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("10.00")})
	assertKind(t, errConsume, KindInvalidState)
	if !errors.Is(errConsume, ErrInvalidState) {
		t.Fatalf("expected errors.Is ErrInvalidState, got %v", errConsume)
	}

	stored := loadCard(t, conn, card.CardNo)
	assertDecimal(t, "balance after rejected consume", stored.Balance, "70.00")
	if stored.Status != string(StatusFrozen) {
		t.Fatalf("expected FROZEN, got %s", stored.Status)
	}
	assertReconciles(t, svc, card.CardNo)
}

func TestIssueWithoutInitialBalanceWritesNoEntry(t *testing.T) {
	svc, conn := newTestService(t)
	typeID := seedCardType(t, conn, "Standard")

	card := issue(t, svc, typeID, "S1002", "0")
	if len(entriesOf(t, conn, card.CardNo)) != 0 {
		t.Fatalf("expected no entries for an empty card")
	}
	info, errBalance := svc.GetBalance(context.Background(), card.CardNo)
	if errBalance != nil {
		t.Fatalf("get balance: %v", errBalance)
	}
	if !info.LastActivityAt.Equal(card.CreatedAt) {
		t.Fatalf("expected last activity at issuance %s, got %s", card.CreatedAt, info.LastActivityAt)
	}
}

func TestRechargeAndConsumeValidation(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S1003", "10")

	cases := []struct {
		name   string
		amount string
	}{
		{name: "zero", amount: "0"},
		{name: "negative", amount: "-5"},
		{name: "sub-cent", amount: "1.234"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errRecharge := svc.Recharge(ctx, RechargeRequest{CardNo: card.CardNo, Amount: dec(tc.amount)})
			assertKind(t, errRecharge, KindInvalidArgument)
			_, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec(tc.amount)})
			assertKind(t, errConsume, KindInvalidArgument)
		})
	}

	_, errMissing := svc.Recharge(ctx, RechargeRequest{CardNo: "C-missing", Amount: dec("1")})
	assertKind(t, errMissing, KindNotFound)

	_, errOverdraw := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("10.01")})
	assertKind(t, errOverdraw, KindInsufficientBalance)

	balance, errExact := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("10")})
	if errExact != nil {
		t.Fatalf("consume full balance: %v", errExact)
	}
	assertDecimal(t, "balance", balance, "0")
	if got := len(entriesOf(t, conn, card.CardNo)); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}

func TestRechargeTagsMethod(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S1004", "0")

	if _, errRecharge := svc.Recharge(ctx, RechargeRequest{CardNo: card.CardNo, Amount: dec("20"), Method: "WECHAT"}); errRecharge != nil {
		t.Fatalf("recharge: %v", errRecharge)
	}
	if _, errRecharge := svc.Recharge(ctx, RechargeRequest{CardNo: card.CardNo, Amount: dec("5.50")}); errRecharge != nil {
		t.Fatalf("recharge: %v", errRecharge)
	}
	entries := entriesOf(t, conn, card.CardNo)
	if entries[0].Merchant != "WECHAT" || entries[1].Merchant != MerchantUnknown {
		t.Fatalf("unexpected merchants %q, %q", entries[0].Merchant, entries[1].Merchant)
	}
	assertDecimal(t, "balance", loadCard(t, conn, card.CardNo).Balance, "25.50")
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S2001", "100")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
		other    []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("60")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errConsume == nil:
				success++
			case errors.Is(errConsume, ErrInsufficientBalance):
				rejected++
			default:
				other = append(other, errConsume)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if success != 1 || rejected != 1 {
		t.Fatalf("expected one success and one rejection, got %d and %d", success, rejected)
	}
	assertDecimal(t, "balance", loadCard(t, conn, card.CardNo).Balance, "40")
	if got := len(entriesOf(t, conn, card.CardNo)); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
	assertReconciles(t, svc, card.CardNo)
}

func TestConcurrentMixedOperationsReconcile(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S2002", "50")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Recharge(ctx, RechargeRequest{CardNo: card.CardNo, Amount: dec("3.10")})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("7.25")})
		}()
	}
	wg.Wait()

	stored := loadCard(t, conn, card.CardNo)
	if stored.Balance.IsNegative() {
		t.Fatalf("balance went negative: %s", stored.Balance)
	}
	assertReconciles(t, svc, card.CardNo)
}

func TestObserverAndPublisherSeeCommittedWork(t *testing.T) {
	rec := newRecorder()
	rec.fail = true
	svc, conn := newTestService(t, WithObserver(rec), WithPublisher(rec))
	ctx := context.Background()
	typeID := seedCardType(t, conn, "Standard")
	card := issue(t, svc, typeID, "S2003", "10")

	if _, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("4")}); errConsume != nil {
		t.Fatalf("consume despite publisher failure: %v", errConsume)
	}
	if _, errConsume := svc.Consume(ctx, ConsumeRequest{CardNo: card.CardNo, Amount: dec("40")}); errConsume == nil {
		t.Fatalf("expected overdraw to fail")
	}

	types := rec.eventTypes()
	if len(types) != 2 || types[0] != EventIssued || types[1] != EventConsumed {
		t.Fatalf("unexpected events %v", types)
	}
	if len(rec.entries) != 2 {
		t.Fatalf("expected 2 appended entries, got %d", len(rec.entries))
	}
	consumes := rec.ops["consume"]
	if len(consumes) != 2 || consumes[0] != nil || KindOf(consumes[1]) != KindInsufficientBalance {
		t.Fatalf("unexpected consume observations %v", consumes)
	}
	var stored []models.CardTx
	conn.Find(&stored)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored entries, got %d", len(stored))
	}
}
