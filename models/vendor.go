package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/matching"
	"gorm.io/gorm"
)

type Vendor struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	NameTranslit string    `gorm:"size:255;default:null" json:"name_translit"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LookupVendor resolves an OCR'd vendor name against the registry: best global
// similarity >= 60 wins. Both the registered name and its transliteration are
// tried. Returns nil when nothing clears the floor.
func LookupVendor(ctx context.Context, db *gorm.DB, ocrName string) (*Vendor, int, error) {
	if ocrName == "" {
		return nil, 0, nil
	}
	var vendors []Vendor
	if err := db.WithContext(ctx).Find(&vendors).Error; err != nil {
		return nil, 0, err
	}

	var best *Vendor
	bestScore := 0
	for i := range vendors {
		score := matching.VendorSimilarity(ocrName, vendors[i].Name)
		if vendors[i].NameTranslit != "" {
			if s := matching.VendorSimilarity(ocrName, vendors[i].NameTranslit); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			best = &vendors[i]
		}
	}
	if best == nil || bestScore < 60 {
		return nil, bestScore, nil
	}
	return best, bestScore, nil
}

// LookupVendorInRawText scans every line of raw OCR text for a vendor whose
// name appears with substring similarity >= 70. Fallback for documents whose
// vendor field extraction failed.
func LookupVendorInRawText(ctx context.Context, db *gorm.DB, rawLines []string) (*Vendor, error) {
	if len(rawLines) == 0 {
		return nil, nil
	}
	var vendors []Vendor
	if err := db.WithContext(ctx).Find(&vendors).Error; err != nil {
		return nil, err
	}

	var best *Vendor
	bestScore := 0
	for _, line := range rawLines {
		for i := range vendors {
			score := matching.VendorSimilarity(line, vendors[i].Name)
			if vendors[i].NameTranslit != "" {
				if s := matching.VendorSimilarity(line, vendors[i].NameTranslit); s > score {
					score = s
				}
			}
			if score >= 70 && score > bestScore {
				bestScore = score
				best = &vendors[i]
			}
		}
	}
	return best, nil
}
