package cardledger

import (
	"fmt"

	"github.com/campus-card/cardledger/internal/models"
	"github.com/shopspring/decimal"
)

// Effect returns how an entry of the given kind and stored amount moves
// the card balance. RECHARGE and CONSUME amounts are already signed; a
// REFUND is stored positive and pays the amount out of the card.
func Effect(kind TxKind, amount decimal.Decimal) decimal.Decimal {
	if kind == TxRefund {
		return amount.Neg()
	}
	return amount
}

// apply is the only place a card balance changes: it moves the balance by
// the effect of one entry of magnitude amount and appends that entry, in
// the surrounding transaction.
func (m *mutation) apply(card *models.Card, kind TxKind, amount decimal.Decimal, merchant, note string) error {
	if !amount.IsPositive() {
		return invalidArgument(m.op, "amount must be positive")
	}

	stored := amount
	if kind == TxConsume {
		stored = amount.Neg()
	}
	next := card.Balance.Add(Effect(kind, stored))
	if next.IsNegative() {
		return insufficientBalance(m.op, "balance %s of card %s does not cover %s",
			card.Balance.StringFixed(2), card.CardNo, amount.StringFixed(2))
	}

	if errUpdate := m.tx.Model(&models.Card{}).
		Where("id = ?", card.ID).
		Updates(map[string]any{"balance": next, "updated_at": m.now}).Error; errUpdate != nil {
		return fmt.Errorf("cardledger: %s: update balance: %w", m.op, errUpdate)
	}

	entry := models.CardTx{
		CardNo:       card.CardNo,
		Kind:         string(kind),
		Amount:       stored,
		BalanceAfter: next,
		Merchant:     merchant,
		OccurredAt:   m.now,
		Note:         note,
	}
	if errCreate := m.tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("cardledger: %s: append entry: %w", m.op, errCreate)
	}

	card.Balance = next
	m.entries = append(m.entries, entry)
	return nil
}
