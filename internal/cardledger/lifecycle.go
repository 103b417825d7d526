package cardledger

import (
	"context"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"github.com/shopspring/decimal"
)

// transition describes one lifecycle operation: the statuses it may start
// from and the status it leaves the card in.
type transition struct {
	op     string
	from   []Status
	to     Status
	reject string
}

var (
	transitionReportLoss = transition{
		op:     "report loss",
		from:   []Status{StatusActive, StatusFrozen, StatusLost},
		to:     StatusLost,
		reject: "card cannot be reported lost from status %s",
	}
	transitionFreeze = transition{
		op:     "freeze",
		from:   []Status{StatusActive, StatusLost},
		to:     StatusFrozen,
		reject: "card cannot be frozen from status %s",
	}
	transitionUnloss = transition{
		op:     "unloss",
		from:   []Status{StatusLost},
		to:     StatusActive,
		reject: "only a lost card can be recovered, card is %s",
	}
	transitionUnfreeze = transition{
		op:     "unfreeze",
		from:   []Status{StatusFrozen},
		to:     StatusActive,
		reject: "only a frozen card can be unfrozen, card is %s",
	}
)

func (t transition) allows(s Status) bool {
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

// ReportLoss marks a card LOST. Reporting an already lost card succeeds.
func (s *Service) ReportLoss(ctx context.Context, cardNo string) error {
	return s.transition(ctx, cardNo, transitionReportLoss)
}

// Freeze marks a card FROZEN.
func (s *Service) Freeze(ctx context.Context, cardNo string) error {
	return s.transition(ctx, cardNo, transitionFreeze)
}

// Unloss restores a LOST card to ACTIVE.
func (s *Service) Unloss(ctx context.Context, cardNo string) error {
	return s.transition(ctx, cardNo, transitionUnloss)
}

// Unfreeze restores a FROZEN card to ACTIVE.
func (s *Service) Unfreeze(ctx context.Context, cardNo string) error {
	return s.transition(ctx, cardNo, transitionUnfreeze)
}

func (s *Service) transition(ctx context.Context, cardNo string, t transition) (err error) {
	defer s.observe(t.op, time.Now(), &err)
	cardNo = strings.TrimSpace(cardNo)

	var from Status
	err = s.mutate(ctx, t.op, cardNo, func(m *mutation, card *models.Card) error {
		from = Status(card.Status)
		if !t.allows(from) {
			return invalidState(t.op, t.reject, from)
		}
		if from == t.to {
			return nil
		}
		return m.setStatus(card, t.to)
	})
	if err != nil {
		return err
	}
	if from != t.to {
		s.emit(ctx, Event{Type: EventStatusChanged, CardNo: cardNo, Status: t.to, PrevStatus: from, OccurredAt: s.now()})
	}
	return nil
}

// CancelRequest is the input of Cancel.
type CancelRequest struct {
	CardNo string
	Refund bool
	Note   string
}

// Cancel moves a card to the terminal CANCELLED status and zeroes its
// balance. When Refund is set and the balance is positive, a REFUND entry
// pays the balance out to the holder; otherwise a positive balance is
// written off with a CONSUME entry so the ledger still sums to zero.
// Cancelling a cancelled card is a no-op.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (err error) {
	const op = "cancel"
	defer s.observe(op, time.Now(), &err)
	req.CardNo = strings.TrimSpace(req.CardNo)

	var (
		changed bool
		prior   decimal.Decimal
	)
	err = s.mutate(ctx, op, req.CardNo, func(m *mutation, card *models.Card) error {
		if Status(card.Status).Terminal() {
			return nil
		}
		changed = true
		prior = card.Balance
		if errZero := m.zeroBalance(card, req.Refund, req.Note); errZero != nil {
			return errZero
		}
		return m.setStatus(card, StatusCancelled)
	})
	if err != nil || !changed {
		return err
	}
	s.emit(ctx, Event{Type: EventCancelled, CardNo: req.CardNo, Status: StatusCancelled, Amount: prior, Balance: decimal.Zero, OccurredAt: s.now()})
	return nil
}

// zeroBalance empties the card through a ledger entry. refund selects a
// REFUND payout over a write-off.
func (m *mutation) zeroBalance(card *models.Card, refund bool, note string) error {
	prior := card.Balance
	if !prior.IsPositive() {
		return nil
	}
	if refund {
		if note == "" {
			note = "refund on cancellation"
		}
		return m.apply(card, TxRefund, prior, MerchantCardCenter, note)
	}
	if note == "" {
		note = "balance forfeited on cancellation"
	}
	return m.apply(card, TxConsume, prior, MerchantCardCenter, note)
}

func (m *mutation) setStatus(card *models.Card, status Status) error {
	if errUpdate := m.tx.Model(&models.Card{}).
		Where("id = ?", card.ID).
		Updates(map[string]any{"status": string(status), "updated_at": m.now}).Error; errUpdate != nil {
		return errUpdate
	}
	card.Status = string(status)
	return nil
}

// requireActive guards recharge and consume on the current status and,
// for visitor cards, the expiry.
func requireActive(op string, card *models.Card, now time.Time) error {
	if Status(card.Status) != StatusActive {
		return invalidState(op, "card %s is %s", card.CardNo, card.Status)
	}
	if card.HolderType == string(HolderVisitor) && card.ExpireAt != nil && !now.Before(*card.ExpireAt) {
		return invalidState(op, "visitor card %s expired at %s", card.CardNo, card.ExpireAt.UTC().Format(time.RFC3339))
	}
	return nil
}
