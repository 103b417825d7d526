package cardledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campus-card/cardledger/internal/models"
	"gorm.io/gorm"
)

// dbCardTypes resolves card type names from the card_types table.
type dbCardTypes struct {
	db *gorm.DB
}

func (d dbCardTypes) CardTypeName(ctx context.Context, typeID uint64) (string, bool, error) {
	var cardType models.CardType
	errFind := d.db.WithContext(ctx).Select("id", "name").First(&cardType, typeID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errFind
	}
	return cardType.Name, true, nil
}

// CardTypeInput carries the editable fields of a card type.
type CardTypeInput struct {
	Name        string
	Description string
}

// ListCardTypes returns every card type ordered by id.
func (s *Service) ListCardTypes(ctx context.Context) ([]models.CardType, error) {
	var cardTypes []models.CardType
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&cardTypes).Error; errFind != nil {
		return nil, fmt.Errorf("cardledger: list card types: %w", errFind)
	}
	return cardTypes, nil
}

// GetCardType returns one card type.
func (s *Service) GetCardType(ctx context.Context, id uint64) (*models.CardType, error) {
	var cardType models.CardType
	if errFind := s.db.WithContext(ctx).First(&cardType, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, notFound("get card type", "card type %d not found", id)
		}
		return nil, fmt.Errorf("cardledger: get card type: %w", errFind)
	}
	return &cardType, nil
}

// CreateCardType stores a new card type.
func (s *Service) CreateCardType(ctx context.Context, in CardTypeInput) (*models.CardType, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidArgument("create card type", "name is required")
	}
	cardType := &models.CardType{Name: name, Description: strings.TrimSpace(in.Description)}
	if errCreate := s.db.WithContext(ctx).Create(cardType).Error; errCreate != nil {
		return nil, fmt.Errorf("cardledger: create card type: %w", errCreate)
	}
	return cardType, nil
}

// UpdateCardType replaces the name and description of a card type.
func (s *Service) UpdateCardType(ctx context.Context, id uint64, in CardTypeInput) (*models.CardType, error) {
	const op = "update card type"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidArgument(op, "name is required")
	}
	res := s.db.WithContext(ctx).Model(&models.CardType{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "description": strings.TrimSpace(in.Description)})
	if res.Error != nil {
		return nil, fmt.Errorf("cardledger: %s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound(op, "card type %d not found", id)
	}
	return s.GetCardType(ctx, id)
}

// DeleteCardType removes a card type. Cards keep their type id, so a
// deleted type later resolves to a nil name.
func (s *Service) DeleteCardType(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&models.CardType{}, id)
	if res.Error != nil {
		return fmt.Errorf("cardledger: delete card type: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("delete card type", "card type %d not found", id)
	}
	return nil
}
