package cardledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 200
)

// BalanceInfo is the read model returned by GetBalance.
type BalanceInfo struct {
	CardNo       string
	Balance      decimal.Decimal
	Status       Status
	TypeID       uint64
	CardTypeName *string
	HolderType   string
	HolderID     string
	HolderName   *string
	ExpireAt     *time.Time
	// LastActivityAt is the time of the newest ledger entry, or the
	// issuance time of a card without entries.
	LastActivityAt time.Time
}

// GetBalance returns the balance and status of a card together with the
// resolved holder and card type names. Failing lookups leave the names nil.
func (s *Service) GetBalance(ctx context.Context, cardNo string) (*BalanceInfo, error) {
	const op = "get balance"
	cardNo = strings.TrimSpace(cardNo)
	if cardNo == "" {
		return nil, invalidArgument(op, "card number is required")
	}

	var (
		card   models.Card
		latest []models.CardTx
	)
	errRead := s.read(ctx, func(tx *gorm.DB) error {
		if errFind := findCard(tx, op, cardNo, &card); errFind != nil {
			return errFind
		}
		return tx.Model(&models.CardTx{}).
			Select("occurred_at").
			Where("card_no = ?", cardNo).
			Order("occurred_at DESC").Order("id DESC").
			Limit(1).
			Find(&latest).Error
	})
	if errRead != nil {
		return nil, wrapStorage(op, errRead)
	}

	info := &BalanceInfo{
		CardNo:         card.CardNo,
		Balance:        card.Balance,
		Status:         Status(card.Status),
		TypeID:         card.TypeID,
		HolderType:     card.HolderType,
		HolderID:       card.HolderID,
		ExpireAt:       card.ExpireAt,
		LastActivityAt: card.CreatedAt,
	}
	if len(latest) > 0 {
		info.LastActivityAt = latest[0].OccurredAt
	}

	if s.types != nil {
		name, ok, errType := s.types.CardTypeName(ctx, card.TypeID)
		if errType != nil {
			log.WithError(errType).Warnf("cardledger: resolve card type %d", card.TypeID)
		} else if ok {
			info.CardTypeName = &name
		}
	}
	if s.holders != nil {
		name, ok, errHolder := s.holders.ResolveHolderName(ctx, card.HolderType, card.HolderID)
		if errHolder != nil {
			log.WithError(errHolder).Warnf("cardledger: resolve holder %s/%s", card.HolderType, card.HolderID)
		} else if ok {
			info.HolderName = &name
		}
	}
	return info, nil
}

// TxQuery filters GetTransactions. A full window (Start and End) is
// inclusive and takes precedence over Kind. A single bound narrows the
// entries together with Kind.
type TxQuery struct {
	CardNo string
	Kind   string
	Start  *time.Time
	End    *time.Time
}

// GetTransactions returns the matching entries of a card, newest first.
func (s *Service) GetTransactions(ctx context.Context, q TxQuery) ([]models.CardTx, error) {
	const op = "get transactions"
	cardNo := strings.TrimSpace(q.CardNo)
	if cardNo == "" {
		return nil, invalidArgument(op, "card number is required")
	}

	var kind TxKind
	fullWindow := q.Start != nil && q.End != nil
	if fullWindow && q.End.Before(*q.Start) {
		return nil, invalidArgument(op, "end time is before start time")
	}
	if !fullWindow && strings.TrimSpace(q.Kind) != "" {
		parsed, ok := ParseTxKind(q.Kind)
		if !ok {
			return nil, invalidArgument(op, "kind %q must be one of RECHARGE, CONSUME, REFUND", q.Kind)
		}
		kind = parsed
	}

	var entries []models.CardTx
	errRead := s.read(ctx, func(tx *gorm.DB) error {
		var card models.Card
		if errFind := findCard(tx, op, cardNo, &card); errFind != nil {
			return errFind
		}
		query := tx.Model(&models.CardTx{}).Where("card_no = ?", cardNo)
		if q.Start != nil {
			query = query.Where("occurred_at >= ?", q.Start.UTC())
		}
		if q.End != nil {
			query = query.Where("occurred_at <= ?", q.End.UTC())
		}
		if kind != "" {
			query = query.Where("kind = ?", string(kind))
		}
		return query.Order("occurred_at DESC").Order("id DESC").Find(&entries).Error
	})
	if errRead != nil {
		return nil, wrapStorage(op, errRead)
	}
	return entries, nil
}

// CardFilter narrows PageList. Empty fields do not filter.
type CardFilter struct {
	CardNo     string // Substring, case-insensitive.
	HolderType string
	HolderID   string
	Status     string
}

// Page is one page of cards.
type Page struct {
	Total int64
	Page  int
	Size  int
	Items []models.Card
}

// PageList lists cards newest first. page starts at 1; size defaults to 10
// and is capped at 200.
func (s *Service) PageList(ctx context.Context, filter CardFilter, page, size int) (*Page, error) {
	const op = "page list"
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	conn := s.db.WithContext(ctx)
	query := conn.Model(&models.Card{})
	if cardNo := strings.TrimSpace(filter.CardNo); cardNo != "" {
		query = query.Where(dbutil.CaseInsensitiveLikeExpr(conn, "card_no"), "%"+dbutil.NormalizeLikePattern(conn, cardNo)+"%")
	}
	if strings.TrimSpace(filter.HolderType) != "" {
		holderType, ok := ParseHolderType(filter.HolderType)
		if !ok {
			return nil, invalidArgument(op, "unknown holder type %q", filter.HolderType)
		}
		query = query.Where("holder_type = ?", string(holderType))
	}
	if holderID := strings.TrimSpace(filter.HolderID); holderID != "" {
		query = query.Where("holder_id = ?", holderID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		status, ok := ParseStatus(filter.Status)
		if !ok {
			return nil, invalidArgument(op, "unknown status %q", filter.Status)
		}
		query = query.Where("status = ?", string(status))
	}

	result := &Page{Page: page, Size: size}
	if errCount := query.Session(&gorm.Session{}).Count(&result.Total).Error; errCount != nil {
		return nil, fmt.Errorf("cardledger: %s: count: %w", op, errCount)
	}
	if errFind := query.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&result.Items).Error; errFind != nil {
		return nil, fmt.Errorf("cardledger: %s: list: %w", op, errFind)
	}
	return result, nil
}

// Mismatch is a ledger entry whose balance snapshot disagrees with the
// replayed balance.
type Mismatch struct {
	EntryID  uint64
	Expected decimal.Decimal
	Recorded decimal.Decimal
}

// Reconciliation is the result of replaying one card's ledger.
type Reconciliation struct {
	CardNo     string
	Balance    decimal.Decimal
	LedgerSum  decimal.Decimal
	Entries    int
	Mismatches []Mismatch
}

// Consistent reports whether the ledger replays to the stored balance.
func (r *Reconciliation) Consistent() bool {
	return len(r.Mismatches) == 0 && r.Balance.Equal(r.LedgerSum)
}

// Reconcile replays the ledger of a card in commit order and compares the
// running sum with every entry's balance snapshot and the card balance.
func (s *Service) Reconcile(ctx context.Context, cardNo string) (*Reconciliation, error) {
	const op = "reconcile"
	cardNo = strings.TrimSpace(cardNo)
	if cardNo == "" {
		return nil, invalidArgument(op, "card number is required")
	}

	var (
		card    models.Card
		entries []models.CardTx
	)
	errRead := s.read(ctx, func(tx *gorm.DB) error {
		if errFind := findCard(tx, op, cardNo, &card); errFind != nil {
			return errFind
		}
		return tx.Where("card_no = ?", cardNo).Order("id ASC").Find(&entries).Error
	})
	if errRead != nil {
		return nil, wrapStorage(op, errRead)
	}

	rec := &Reconciliation{CardNo: card.CardNo, Balance: card.Balance, LedgerSum: decimal.Zero, Entries: len(entries)}
	for _, entry := range entries {
		rec.LedgerSum = rec.LedgerSum.Add(Effect(TxKind(entry.Kind), entry.Amount))
		if !rec.LedgerSum.Equal(entry.BalanceAfter) {
			rec.Mismatches = append(rec.Mismatches, Mismatch{EntryID: entry.ID, Expected: rec.LedgerSum, Recorded: entry.BalanceAfter})
		}
	}
	if !rec.Consistent() {
		log.WithFields(log.Fields{"card_no": cardNo, "balance": rec.Balance.StringFixed(2), "ledger_sum": rec.LedgerSum.StringFixed(2)}).Warn("cardledger: ledger does not reconcile")
	}
	return rec, nil
}

// EntriesByKindBetween returns the entries of one kind across all cards
// within the inclusive window, oldest first.
func (s *Service) EntriesByKindBetween(ctx context.Context, kind string, start, end time.Time) ([]models.CardTx, error) {
	const op = "entries by kind"
	k, errWindow := validateReportWindow(op, kind, start, end)
	if errWindow != nil {
		return nil, errWindow
	}
	var entries []models.CardTx
	if errFind := s.db.WithContext(ctx).
		Where("kind = ? AND occurred_at >= ? AND occurred_at <= ?", string(k), start.UTC(), end.UTC()).
		Order("occurred_at ASC").Order("id ASC").
		Find(&entries).Error; errFind != nil {
		return nil, fmt.Errorf("cardledger: %s: %w", op, errFind)
	}
	return entries, nil
}

// KindReport aggregates the entries of one kind within a window.
type KindReport struct {
	Kind  TxKind
	Start time.Time
	End   time.Time
	Count int
	Sum   decimal.Decimal
}

// Report sums the entries of one kind within the inclusive window.
func (s *Service) Report(ctx context.Context, kind string, start, end time.Time) (*KindReport, error) {
	entries, errEntries := s.EntriesByKindBetween(ctx, kind, start, end)
	if errEntries != nil {
		return nil, errEntries
	}
	k, _ := ParseTxKind(kind)
	report := &KindReport{Kind: k, Start: start.UTC(), End: end.UTC(), Count: len(entries), Sum: decimal.Zero}
	for _, entry := range entries {
		report.Sum = report.Sum.Add(entry.Amount)
	}
	return report, nil
}

func validateReportWindow(op, kind string, start, end time.Time) (TxKind, error) {
	k, ok := ParseTxKind(kind)
	if !ok {
		return "", invalidArgument(op, "kind %q must be one of RECHARGE, CONSUME, REFUND", kind)
	}
	if start.IsZero() || end.IsZero() {
		return "", invalidArgument(op, "start and end time are required")
	}
	if end.Before(start) {
		return "", invalidArgument(op, "end time is before start time")
	}
	return k, nil
}

// ExpiredVisitorCards returns up to limit numbers of VISITOR cards that
// expired at or before now and are still ACTIVE or LOST.
func (s *Service) ExpiredVisitorCards(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var cardNos []string
	query := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("holder_type = ? AND status IN ? AND expire_at IS NOT NULL AND expire_at <= ?",
			string(HolderVisitor), []string{string(StatusActive), string(StatusLost)}, now.UTC()).
		Order("expire_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if errPluck := query.Pluck("card_no", &cardNos).Error; errPluck != nil {
		return nil, fmt.Errorf("cardledger: expired visitor cards: %w", errPluck)
	}
	return cardNos, nil
}

func findCard(tx *gorm.DB, op, cardNo string, card *models.Card) error {
	if errFind := tx.Where("card_no = ?", cardNo).First(card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return notFound(op, "card %s not found", cardNo)
		}
		return errFind
	}
	return nil
}

// wrapStorage passes ledger errors through and wraps everything else.
func wrapStorage(op string, err error) error {
	if KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("cardledger: %s: %w", op, err)
}
