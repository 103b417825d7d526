package cardledger

import (
	"context"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"github.com/shopspring/decimal"
)

// RechargeRequest is the input of Recharge.
type RechargeRequest struct {
	CardNo string
	Amount decimal.Decimal
	Method string // Source of the funds, stored as the entry's merchant tag.
	Note   string
}

// ConsumeRequest is the input of Consume.
type ConsumeRequest struct {
	CardNo   string
	Amount   decimal.Decimal // Positive amount to spend.
	Merchant string
	Note     string
}

// Recharge adds amount to an ACTIVE card and returns the new balance.
func (s *Service) Recharge(ctx context.Context, req RechargeRequest) (balance decimal.Decimal, err error) {
	const op = "recharge"
	defer s.observe(op, time.Now(), &err)

	if errAmount := validateAmount(op, req.Amount); errAmount != nil {
		return decimal.Zero, errAmount
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = MerchantUnknown
	}

	err = s.mutate(ctx, op, req.CardNo, func(m *mutation, card *models.Card) error {
		if errState := requireActive(op, card, m.now); errState != nil {
			return errState
		}
		if errApply := m.apply(card, TxRecharge, req.Amount, method, req.Note); errApply != nil {
			return errApply
		}
		balance = card.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.emit(ctx, Event{Type: EventRecharged, CardNo: strings.TrimSpace(req.CardNo), Amount: req.Amount, Balance: balance, OccurredAt: s.now()})
	return balance, nil
}

// Consume spends amount from an ACTIVE card and returns the new balance.
// It fails with InsufficientBalance rather than overdraw the card.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (balance decimal.Decimal, err error) {
	const op = "consume"
	defer s.observe(op, time.Now(), &err)

	if errAmount := validateAmount(op, req.Amount); errAmount != nil {
		return decimal.Zero, errAmount
	}

	err = s.mutate(ctx, op, req.CardNo, func(m *mutation, card *models.Card) error {
		if errState := requireActive(op, card, m.now); errState != nil {
			return errState
		}
		if errApply := m.apply(card, TxConsume, req.Amount, strings.TrimSpace(req.Merchant), req.Note); errApply != nil {
			return errApply
		}
		balance = card.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.emit(ctx, Event{Type: EventConsumed, CardNo: strings.TrimSpace(req.CardNo), Amount: req.Amount.Neg(), Balance: balance, OccurredAt: s.now()})
	return balance, nil
}

// validateAmount requires a strictly positive amount in whole cents.
func validateAmount(op string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalidArgument(op, "amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return invalidArgument(op, "amount %s has more than two decimal places", amount.String())
	}
	return nil
}
