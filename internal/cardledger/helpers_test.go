package cardledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	dbutil "github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/campus-card/cardledger/internal/settings"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cardledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := dbutil.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
		settings.StoreDBConfig(time.Time{}, nil)
	})
	return conn
}

func newTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	conn := setupLedgerDB(t)
	return New(conn, opts...), conn
}

func seedCardType(t *testing.T, conn *gorm.DB, name string) uint64 {
	t.Helper()
	cardType := models.CardType{Name: name}
	if errCreate := conn.Create(&cardType).Error; errCreate != nil {
		t.Fatalf("seed card type: %v", errCreate)
	}
	return cardType.ID
}

func issue(t *testing.T, svc *Service, typeID uint64, holderID string, initial string) *models.Card {
	t.Helper()
	card, errIssue := svc.IssueCard(context.Background(), IssueRequest{
		TypeID:         typeID,
		HolderType:     "STUDENT",
		HolderID:       holderID,
		InitialBalance: decimal.RequireFromString(initial),
	})
	if errIssue != nil {
		t.Fatalf("issue card: %v", errIssue)
	}
	return card
}

func loadCard(t *testing.T, conn *gorm.DB, cardNo string) models.Card {
	t.Helper()
	var card models.Card
	if errFind := conn.Where("card_no = ?", cardNo).First(&card).Error; errFind != nil {
		t.Fatalf("load card %s: %v", cardNo, errFind)
	}
	return card
}

func entriesOf(t *testing.T, conn *gorm.DB, cardNo string) []models.CardTx {
	t.Helper()
	var entries []models.CardTx
	if errFind := conn.Where("card_no = ?", cardNo).Order("id ASC").Find(&entries).Error; errFind != nil {
		t.Fatalf("load entries %s: %v", cardNo, errFind)
	}
	return entries
}

func setStatus(t *testing.T, conn *gorm.DB, cardNo string, status Status) {
	t.Helper()
	if errUpdate := conn.Model(&models.Card{}).Where("card_no = ?", cardNo).Update("status", string(status)).Error; errUpdate != nil {
		t.Fatalf("set status: %v", errUpdate)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s error, got %q (%v)", want, got, err)
	}
}

func assertReconciles(t *testing.T, svc *Service, cardNo string) {
	t.Helper()
	rec, errRec := svc.Reconcile(context.Background(), cardNo)
	if errRec != nil {
		t.Fatalf("reconcile %s: %v", cardNo, errRec)
	}
	if !rec.Consistent() {
		t.Fatalf("card %s does not reconcile: balance %s, ledger %s, mismatches %d",
			cardNo, rec.Balance, rec.LedgerSum, len(rec.Mismatches))
	}
}

// testClock is a settable clock for expiry and ordering tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubHolders struct {
	names map[string]string
	err   error
}

func (s stubHolders) ResolveHolderName(_ context.Context, holderType, holderID string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	name, ok := s.names[holderType+"/"+holderID]
	return name, ok, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []Event
	ops     map[string][]error
	entries []models.CardTx
	fail    bool
}

func newRecorder() *recorder { return &recorder{ops: make(map[string][]error)} }

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func (r *recorder) OperationDone(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = append(r.ops[op], err)
}

func (r *recorder) EntryAppended(entry models.CardTx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) eventTypes() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
