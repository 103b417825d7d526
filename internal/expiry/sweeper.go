// Package expiry freezes visitor cards once their validity has ended.
package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 200
	maxBatchesPerRun     = 50
)

// Ledger is the part of the card service the sweeper drives.
type Ledger interface {
	ExpiredVisitorCards(ctx context.Context, now time.Time, limit int) ([]string, error)
	Freeze(ctx context.Context, cardNo string) error
}

// Sweeper periodically freezes expired ACTIVE or LOST visitor cards.
type Sweeper struct {
	ledger    Ledger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewSweeper returns a sweeper running every interval; a non-positive
// interval selects the default.
func NewSweeper(ledger Ledger, interval time.Duration) *Sweeper {
	if ledger == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		ledger:    ledger,
		interval:  interval,
		batchSize: defaultSweepBatch,
		now:       time.Now,
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("visitor expiry sweeper started (interval=%s)", s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.SweepOnce(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// SweepOnce freezes every card that has expired by now and returns how
// many were frozen.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	if s == nil || s.ledger == nil {
		return 0
	}
	now := s.now().UTC()
	frozen := 0
	for i := 0; i < maxBatchesPerRun; i++ {
		if ctx.Err() != nil {
			break
		}
		cardNos, err := s.ledger.ExpiredVisitorCards(ctx, now, s.batchSize)
		if err != nil {
			log.WithError(err).Warn("visitor expiry sweeper: list expired cards failed")
			break
		}
		if len(cardNos) == 0 {
			break
		}
		progressed := 0
		for _, cardNo := range cardNos {
			errFreeze := s.ledger.Freeze(ctx, cardNo)
			switch {
			case errFreeze == nil:
				frozen++
				progressed++
			case errors.Is(errFreeze, cardledger.ErrInvalidState), errors.Is(errFreeze, cardledger.ErrNotFound):
				// Changed status since it was listed.
			default:
				log.WithError(errFreeze).WithField("card_no", cardNo).Warn("visitor expiry sweeper: freeze failed")
			}
		}
		if progressed == 0 || len(cardNos) < s.batchSize {
			break
		}
	}
	if frozen > 0 {
		log.Infof("visitor expiry sweeper: froze %d cards (now=%s)", frozen, now.Format(time.RFC3339))
	}
	return frozen
}
