package cardledger

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"gorm.io/gorm"
)

// maxCardNoAttempts bounds regeneration after uniqueness violations.
const maxCardNoAttempts = 8

// CardNumberGenerator proposes a card number. Uniqueness is enforced by
// the store, the generator only has to make collisions rare.
type CardNumberGenerator func(now time.Time) (string, error)

var cardNoSuffixRange = big.NewInt(1_000_000)

// DefaultCardNumber returns "C" + UTC yyyyMMddHHmmss + six random digits.
func DefaultCardNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, cardNoSuffixRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("C%s%06d", now.UTC().Format("20060102150405"), n.Int64()), nil
}

// insertCard stores card under a freshly generated number. Each attempt
// runs under its own savepoint so a uniqueness violation only discards
// that attempt, not the surrounding transaction.
func (s *Service) insertCard(m *mutation, card *models.Card) error {
	for attempt := 1; attempt <= maxCardNoAttempts; attempt++ {
		cardNo, errGen := s.cardNos(m.now)
		if errGen != nil {
			return fmt.Errorf("cardledger: %s: generate card number: %w", m.op, errGen)
		}
		card.CardNo = cardNo

		savepoint := fmt.Sprintf("card_no_%d", attempt)
		if errSP := m.tx.SavePoint(savepoint).Error; errSP != nil {
			return fmt.Errorf("cardledger: %s: savepoint: %w", m.op, errSP)
		}
		errCreate := m.tx.Create(card).Error
		if errCreate == nil {
			return nil
		}
		if !isDuplicateKey(errCreate) {
			return fmt.Errorf("cardledger: %s: create card: %w", m.op, errCreate)
		}
		if errRollback := m.tx.RollbackTo(savepoint).Error; errRollback != nil {
			return fmt.Errorf("cardledger: %s: rollback savepoint: %w", m.op, errRollback)
		}
		card.ID = 0
	}
	return fmt.Errorf("cardledger: %s: no unique card number after %d attempts", m.op, maxCardNoAttempts)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") || strings.Contains(lower, "duplicate key")
}
