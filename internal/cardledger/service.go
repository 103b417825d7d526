// Package cardledger is the stored-value card ledger: card issuance and
// replacement, the card lifecycle state machine, the balance engine and the
// append-only ledger behind it, and the read-side registry queries.
//
// Every balance mutation runs inside a critical section keyed by card
// number and commits the balance update together with its ledger entry in
// one database transaction.
package cardledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/locker"
	"github.com/campus-card/cardledger/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HolderResolver maps a holder to a display name. A missing holder is
// reported with ok=false, not an error.
type HolderResolver interface {
	ResolveHolderName(ctx context.Context, holderType, holderID string) (name string, ok bool, err error)
}

// CardTypeLookup maps a card type id to its name.
type CardTypeLookup interface {
	CardTypeName(ctx context.Context, typeID uint64) (name string, ok bool, err error)
}

// Publisher receives ledger events after their transaction committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Observer is notified of finished operations and appended entries.
type Observer interface {
	OperationDone(op string, err error, elapsed time.Duration)
	EntryAppended(entry models.CardTx)
}

// Service implements the card ledger on top of a gorm database.
type Service struct {
	db        *gorm.DB
	locker    locker.Locker
	holders   HolderResolver
	types     CardTypeLookup
	publisher Publisher
	observer  Observer
	cardNos   CardNumberGenerator
	clock     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLocker replaces the in-process card locker.
func WithLocker(l locker.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithHolderResolver sets the holder display name resolver.
func WithHolderResolver(r HolderResolver) Option {
	return func(s *Service) { s.holders = r }
}

// WithCardTypeLookup replaces the database-backed card type lookup.
func WithCardTypeLookup(l CardTypeLookup) Option {
	return func(s *Service) {
		if l != nil {
			s.types = l
		}
	}
}

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithCardNumberGenerator replaces the card number generator.
func WithCardNumberGenerator(g CardNumberGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.cardNos = g
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New builds a Service over db.
func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:      db,
		locker:  locker.NewLocal(),
		cardNos: DefaultCardNumber,
		clock:   time.Now,
	}
	s.types = dbCardTypes{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now returns the service clock in UTC at microsecond precision, the
// precision every supported store keeps.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// mutation is the write scope of one critical section.
type mutation struct {
	op      string
	tx      *gorm.DB
	now     time.Time
	entries []models.CardTx
}

// mutate runs fn in the critical section of cardNo: under the card lock,
// inside one transaction, with the card row loaded for update.
func (s *Service) mutate(ctx context.Context, op, cardNo string, fn func(m *mutation, card *models.Card) error) error {
	cardNo = strings.TrimSpace(cardNo)
	if cardNo == "" {
		return invalidArgument(op, "card number is required")
	}

	unlock, errLock := s.locker.Lock(ctx, lockKey(cardNo))
	if errLock != nil {
		return fmt.Errorf("cardledger: %s: lock card %s: %w", op, cardNo, errLock)
	}
	defer unlock()

	return s.write(ctx, op, func(m *mutation) error {
		card, errLoad := loadCardForUpdate(m.tx, op, cardNo)
		if errLoad != nil {
			return errLoad
		}
		return fn(m, card)
	})
}

// write runs fn in a transaction and reports its entries once committed.
func (s *Service) write(ctx context.Context, op string, fn func(m *mutation) error) error {
	m := &mutation{op: op, now: s.now()}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m.tx = tx
		return fn(m)
	})
	if errTx != nil {
		return errTx
	}
	if s.observer != nil {
		for _, entry := range m.entries {
			s.observer.EntryAppended(entry)
		}
	}
	return nil
}

// read runs fn against one consistent snapshot of committed rows.
func (s *Service) read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	conn := s.db.WithContext(ctx)
	if dbutil.IsSQLite(conn) {
		return conn.Transaction(fn)
	}
	return conn.Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func lockKey(cardNo string) string { return "card:" + cardNo }

func loadCardForUpdate(tx *gorm.DB, op, cardNo string) (*models.Card, error) {
	var card models.Card
	if errFind := dbutil.ForUpdate(tx).Where("card_no = ?", cardNo).First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, notFound(op, "card %s not found", cardNo)
		}
		return nil, fmt.Errorf("cardledger: %s: load card %s: %w", op, cardNo, errFind)
	}
	return &card, nil
}

func (s *Service) observe(op string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	var opErr error
	if err != nil {
		opErr = *err
	}
	s.observer.OperationDone(op, opErr, time.Since(start))
}

func (s *Service) emit(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if errPublish := s.publisher.Publish(ctx, ev); errPublish != nil {
		log.WithError(errPublish).WithFields(log.Fields{
			"event":   ev.Type,
			"card_no": ev.CardNo,
		}).Warn("cardledger: publish event failed")
	}
}
