package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Correction records one human field edit made during reconciliation.
// Persisted in bulk at confirm time.
type Correction struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	StatementLineItemId int                 `gorm:"index;not null" json:"statement_line_item_id"`
	FieldType           CorrectionFieldType `gorm:"type:enum('ItemName','Spec','Qty','UnitPrice','Amount','OrderNumber','VendorName','Remark');not null" json:"field_type"`
	OriginalText        string              `gorm:"size:512" json:"original_text"`
	CorrectedText       string              `gorm:"size:512" json:"corrected_text"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// ItemAlias is a learned mapping from an OCR item name to the canonical system
// name/spec it was ultimately matched to. Occurrences counts how often the
// mapping has been confirmed; the candidate generator weights by it.
type ItemAlias struct {
	ID            int       `gorm:"primary_key" json:"id"`
	OcrName       string    `gorm:"size:255;uniqueIndex;not null" json:"ocr_name"`
	CanonicalName string    `gorm:"size:255;not null" json:"canonical_name"`
	CanonicalSpec string    `gorm:"size:255;default:null" json:"canonical_spec"`
	Occurrences   int       `gorm:"default:1" json:"occurrences"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func SaveCorrections(ctx context.Context, tx *gorm.DB, corrections []Correction) error {
	if len(corrections) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&corrections).Error
}

// UpsertItemAlias bumps the occurrence count when the mapping already exists.
// Names are stored trimmed; empty OCR names are ignored.
func UpsertItemAlias(ctx context.Context, tx *gorm.DB, ocrName, canonicalName, canonicalSpec string) error {
	ocrName = strings.TrimSpace(ocrName)
	canonicalName = strings.TrimSpace(canonicalName)
	if ocrName == "" || canonicalName == "" || ocrName == canonicalName {
		return nil
	}
	alias := ItemAlias{
		OcrName:       ocrName,
		CanonicalName: canonicalName,
		CanonicalSpec: strings.TrimSpace(canonicalSpec),
		Occurrences:   1,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ocr_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"canonical_name": canonicalName,
			"canonical_spec": alias.CanonicalSpec,
			"occurrences":    gorm.Expr("occurrences + 1"),
		}),
	}).Create(&alias).Error
}

// FindItemAlias returns the learned mapping for an OCR name, or nil.
func FindItemAlias(ctx context.Context, db *gorm.DB, ocrName string) (*ItemAlias, error) {
	ocrName = strings.TrimSpace(ocrName)
	if ocrName == "" {
		return nil, nil
	}
	var alias ItemAlias
	err := db.WithContext(ctx).Where("ocr_name = ?", ocrName).Take(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alias, nil
}
