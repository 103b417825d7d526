package cardledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"github.com/campus-card/cardledger/internal/settings"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IssueRequest is the input of IssueCard and one item of BatchIssue.
type IssueRequest struct {
	TypeID         uint64
	HolderType     string
	HolderID       string
	InitialBalance decimal.Decimal // Zero issues an empty card.
	Note           string
	ExpireAt       *time.Time // VISITOR cards only.
}

// BatchResult reports a committed batch issuance.
type BatchResult struct {
	Count   int
	CardNos []string
}

// BatchItemError locates the item that aborted a batch.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// IssueCard creates an ACTIVE card. A positive initial balance is
// credited with a RECHARGE entry tagged as system issuance.
func (s *Service) IssueCard(ctx context.Context, req IssueRequest) (card *models.Card, err error) {
	const op = "issue card"
	defer s.observe(op, time.Now(), &err)

	item, errValidate := s.normalizeIssue(op, req)
	if errValidate != nil {
		return nil, errValidate
	}

	err = s.write(ctx, op, func(m *mutation) error {
		issued, errIssue := s.issueOne(m, item)
		if errIssue != nil {
			return errIssue
		}
		card = issued
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"card_no": card.CardNo, "holder_type": card.HolderType, "holder_id": card.HolderID}).Info("cardledger: card issued")
	s.emit(ctx, issuedEvent(card))
	return card, nil
}

// BatchIssue issues every item in one transaction. The batch is
// all-or-nothing: items are validated up front, and a failure on any item
// rolls back the cards already created by the batch. The returned error
// wraps a *BatchItemError naming the failing item.
func (s *Service) BatchIssue(ctx context.Context, items []IssueRequest) (result *BatchResult, err error) {
	const op = "batch issue"
	defer s.observe(op, time.Now(), &err)

	if len(items) == 0 {
		return nil, invalidArgument(op, "batch has no items")
	}
	if maxItems := settings.Int(settings.BatchIssueMaxItemsKey, settings.DefaultBatchIssueMaxItems); maxItems > 0 && len(items) > maxItems {
		return nil, invalidArgument(op, "batch of %d items exceeds the limit of %d", len(items), maxItems)
	}

	normalized := make([]IssueRequest, len(items))
	for i, item := range items {
		n, errValidate := s.normalizeIssue(op, item)
		if errValidate != nil {
			return nil, &BatchItemError{Index: i, Err: errValidate}
		}
		normalized[i] = n
	}

	issued := make([]*models.Card, 0, len(normalized))
	err = s.write(ctx, op, func(m *mutation) error {
		for i, item := range normalized {
			card, errIssue := s.issueOne(m, item)
			if errIssue != nil {
				return &BatchItemError{Index: i, Err: errIssue}
			}
			issued = append(issued, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result = &BatchResult{Count: len(issued), CardNos: make([]string, 0, len(issued))}
	for _, card := range issued {
		result.CardNos = append(result.CardNos, card.CardNo)
		s.emit(ctx, issuedEvent(card))
	}
	log.Infof("cardledger: batch issued %d cards", result.Count)
	return result, nil
}

// normalizeIssue validates req and fills defaults.
func (s *Service) normalizeIssue(op string, req IssueRequest) (IssueRequest, error) {
	holderType, ok := ParseHolderType(req.HolderType)
	if !ok {
		return req, invalidArgument(op, "holder type %q must be one of STUDENT, TEACHER, STAFF, VISITOR", req.HolderType)
	}
	req.HolderType = string(holderType)
	req.HolderID = strings.TrimSpace(req.HolderID)
	if req.HolderID == "" {
		return req, invalidArgument(op, "holder id is required")
	}
	if req.TypeID == 0 {
		return req, invalidArgument(op, "card type is required")
	}
	if req.InitialBalance.IsNegative() {
		return req, invalidArgument(op, "initial balance cannot be negative")
	}
	if !req.InitialBalance.IsZero() {
		if errAmount := validateAmount(op, req.InitialBalance); errAmount != nil {
			return req, errAmount
		}
	}

	now := s.now()
	if req.ExpireAt != nil {
		if holderType != HolderVisitor {
			return req, invalidArgument(op, "expiration applies to VISITOR cards only")
		}
		expireAt := req.ExpireAt.UTC()
		if !expireAt.After(now) {
			return req, invalidArgument(op, "expiration %s is not in the future", expireAt.Format(time.RFC3339))
		}
		req.ExpireAt = &expireAt
	} else if holderType == HolderVisitor {
		if days := settings.Int(settings.VisitorCardValidDaysKey, settings.DefaultVisitorCardValidDays); days > 0 {
			expireAt := now.AddDate(0, 0, days)
			req.ExpireAt = &expireAt
		}
	}
	return req, nil
}

// issueOne creates one validated card inside m.
func (s *Service) issueOne(m *mutation, req IssueRequest) (*models.Card, error) {
	if errType := ensureCardType(m.tx, m.op, req.TypeID); errType != nil {
		return nil, errType
	}

	card := &models.Card{
		TypeID:     req.TypeID,
		HolderType: req.HolderType,
		HolderID:   req.HolderID,
		Status:     string(StatusActive),
		Balance:    decimal.Zero,
		CreatedAt:  m.now,
		ExpireAt:   req.ExpireAt,
	}
	if errInsert := s.insertCard(m, card); errInsert != nil {
		return nil, errInsert
	}
	if req.InitialBalance.IsPositive() {
		if errApply := m.apply(card, TxRecharge, req.InitialBalance, MerchantSystemIssue, req.Note); errApply != nil {
			return nil, errApply
		}
	}
	return card, nil
}

// ReplaceRequest is the input of ReplaceCard.
type ReplaceRequest struct {
	OldCardNo  string
	ChangeType string // SUPPLEMENT (default) or TYPE_CHANGE.
	NewTypeID  uint64 // Required for TYPE_CHANGE.
	Fee        *decimal.Decimal
	Note       string
}

// ReplaceResult reports a committed replacement.
type ReplaceResult struct {
	NewCardNo string
	Balance   decimal.Decimal
}

// ReplaceCard cancels an ACTIVE or LOST card and issues its successor to
// the same holder. The old balance is carried over to the new card, and
// the replacement fee is then charged as a CONSUME entry on the new card.
// A fee larger than the carried balance fails with InsufficientBalance
// and leaves both cards and the ledger untouched.
func (s *Service) ReplaceCard(ctx context.Context, req ReplaceRequest) (result *ReplaceResult, err error) {
	const op = "replace card"
	defer s.observe(op, time.Now(), &err)

	changeType := ChangeSupplement
	if strings.TrimSpace(req.ChangeType) != "" {
		parsed, ok := ParseChangeType(req.ChangeType)
		if !ok {
			return nil, invalidArgument(op, "change type %q must be SUPPLEMENT or TYPE_CHANGE", req.ChangeType)
		}
		changeType = parsed
	}
	if changeType == ChangeTypeChange && req.NewTypeID == 0 {
		return nil, invalidArgument(op, "new card type is required for a type change")
	}

	fee := settings.Decimal(settings.ReplacementDefaultFeeKey, decimal.RequireFromString(settings.DefaultReplacementFee))
	if req.Fee != nil {
		fee = *req.Fee
	}
	if fee.IsNegative() {
		return nil, invalidArgument(op, "fee cannot be negative")
	}
	if !fee.Equal(fee.Round(2)) {
		return nil, invalidArgument(op, "fee %s has more than two decimal places", fee.String())
	}

	var (
		oldCard models.Card
		newCard *models.Card
	)
	err = s.mutate(ctx, op, req.OldCardNo, func(m *mutation, old *models.Card) error {
		status := Status(old.Status)
		if status != StatusActive && status != StatusLost {
			return invalidState(op, "card %s is %s, only ACTIVE or LOST cards can be replaced", old.CardNo, status)
		}
		carry := old.Balance
		if carry.LessThan(fee) {
			return insufficientBalance(op, "balance %s of card %s does not cover the fee %s",
				carry.StringFixed(2), old.CardNo, fee.StringFixed(2))
		}

		typeID := old.TypeID
		if changeType == ChangeTypeChange {
			typeID = req.NewTypeID
		}
		issued, errIssue := s.issueOne(m, IssueRequest{
			TypeID:     typeID,
			HolderType: old.HolderType,
			HolderID:   old.HolderID,
			ExpireAt:   old.ExpireAt,
		})
		if errIssue != nil {
			return errIssue
		}

		if carry.IsPositive() {
			if errOut := m.apply(old, TxRefund, carry, MerchantCarryover, "carried over to "+issued.CardNo); errOut != nil {
				return errOut
			}
			if errIn := m.apply(issued, TxRecharge, carry, MerchantCarryover, "carried over from "+old.CardNo); errIn != nil {
				return errIn
			}
		}
		if errStatus := m.setStatus(old, StatusCancelled); errStatus != nil {
			return errStatus
		}
		if fee.IsPositive() {
			note := req.Note
			if note == "" {
				note = "card replacement fee"
			}
			if errFee := m.apply(issued, TxConsume, fee, MerchantCardCenter, note); errFee != nil {
				return errFee
			}
		}

		oldCard = *old
		newCard = issued
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"old_card_no": oldCard.CardNo, "new_card_no": newCard.CardNo, "fee": fee.StringFixed(2)}).Info("cardledger: card replaced")
	now := s.now()
	s.emit(ctx, Event{Type: EventCancelled, CardNo: oldCard.CardNo, RelatedCardNo: newCard.CardNo, Status: StatusCancelled, Balance: decimal.Zero, OccurredAt: now})
	s.emit(ctx, Event{Type: EventReplaced, CardNo: newCard.CardNo, RelatedCardNo: oldCard.CardNo, HolderType: newCard.HolderType, HolderID: newCard.HolderID, Status: StatusActive, Amount: fee.Neg(), Balance: newCard.Balance, OccurredAt: now})
	return &ReplaceResult{NewCardNo: newCard.CardNo, Balance: newCard.Balance}, nil
}

func ensureCardType(tx *gorm.DB, op string, typeID uint64) error {
	var cardType models.CardType
	if errFind := tx.Select("id").First(&cardType, typeID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return notFound(op, "card type %d not found", typeID)
		}
		return fmt.Errorf("cardledger: %s: load card type: %w", op, errFind)
	}
	return nil
}

func issuedEvent(card *models.Card) Event {
	return Event{
		Type:       EventIssued,
		CardNo:     card.CardNo,
		HolderType: card.HolderType,
		HolderID:   card.HolderID,
		Status:     Status(card.Status),
		Amount:     card.Balance,
		Balance:    card.Balance,
		OccurredAt: card.CreatedAt,
	}
}
