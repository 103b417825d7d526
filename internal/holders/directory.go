// Package holders keeps the display names of card holders pushed by the
// organisational directory and resolves them for ledger reads.
package holders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory resolves holder names from the holder_entries table.
type Directory struct {
	db *gorm.DB
}

// NewDirectory returns a Directory over db.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ResolveHolderName returns the name of a holder; ok is false when the
// directory has no entry for it.
func (d *Directory) ResolveHolderName(ctx context.Context, holderType, holderID string) (string, bool, error) {
	if d == nil || d.db == nil {
		return "", false, nil
	}
	var entry models.HolderEntry
	errFind := d.db.WithContext(ctx).
		Where("holder_type = ? AND holder_id = ?", normalizeType(holderType), strings.TrimSpace(holderID)).
		First(&entry).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("holders: resolve %s/%s: %w", holderType, holderID, errFind)
	}
	return entry.Name, true, nil
}

// Upsert stores or renames a holder.
func (d *Directory) Upsert(ctx context.Context, holderType, holderID, name string) (*models.HolderEntry, error) {
	entry := &models.HolderEntry{
		HolderType: normalizeType(holderType),
		HolderID:   strings.TrimSpace(holderID),
		Name:       strings.TrimSpace(name),
		UpdatedAt:  time.Now().UTC(),
	}
	if entry.HolderType == "" || entry.HolderID == "" || entry.Name == "" {
		return nil, fmt.Errorf("holders: holder type, id and name are required")
	}
	errUpsert := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "holder_type"}, {Name: "holder_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(entry).Error
	if errUpsert != nil {
		return nil, fmt.Errorf("holders: upsert %s/%s: %w", entry.HolderType, entry.HolderID, errUpsert)
	}
	return entry, nil
}

// Delete removes a holder; removing an unknown holder is not an error.
func (d *Directory) Delete(ctx context.Context, holderType, holderID string) error {
	errDelete := d.db.WithContext(ctx).
		Where("holder_type = ? AND holder_id = ?", normalizeType(holderType), strings.TrimSpace(holderID)).
		Delete(&models.HolderEntry{}).Error
	if errDelete != nil {
		return fmt.Errorf("holders: delete %s/%s: %w", holderType, holderID, errDelete)
	}
	return nil
}

func normalizeType(holderType string) string {
	return strings.ToUpper(strings.TrimSpace(holderType))
}
