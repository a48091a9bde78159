package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderRecord struct {
	ID             int         `gorm:"primary_key" json:"id"`
	PurchaseNumber string      `gorm:"size:255;uniqueIndex;not null" json:"purchase_number"`
	SalesNumber    string      `gorm:"size:255;index;default:null" json:"sales_number"`
	VendorId       int         `gorm:"index;not null" json:"vendor_id"`
	VendorName     string      `gorm:"size:255" json:"vendor_name"`
	OrderDate      time.Time   `gorm:"index;not null" json:"order_date"`
	Lines          []OrderLine `json:"lines"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OrderRecordId int             `gorm:"index;not null" json:"order_record_id"`
	LineNo        int             `gorm:"not null" json:"line_no"`
	ItemName      string          `gorm:"size:255;index;not null" json:"item_name"`
	Specification string          `gorm:"size:255;default:null" json:"specification"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	ReceivedQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindOrderByNumber matches either side of the order's numbering (purchase or
// sales counterpart). Returns nil when not found.
func FindOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*OrderRecord, error) {
	if number == "" {
		return nil, nil
	}
	var order OrderRecord
	err := db.WithContext(ctx).Preload("Lines").
		Where("purchase_number = ? OR sales_number = ?", number, number).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrdersByNumberPrefix serves the date-prefix correction search: all orders
// whose purchase or sales number starts with prefix, optionally restricted to a
// vendor.
func FindOrdersByNumberPrefix(ctx context.Context, db *gorm.DB, prefix string, vendorId *int) ([]OrderRecord, error) {
	if prefix == "" {
		return nil, nil
	}
	q := db.WithContext(ctx).Preload("Lines").
		Where("purchase_number LIKE ? OR sales_number LIKE ?", prefix+"%", prefix+"%")
	if vendorId != nil {
		q = q.Where("vendor_id = ?", *vendorId)
	}
	var orders []OrderRecord
	if err := q.Limit(50).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindRecentOrdersByVendor returns the vendor's orders within the recency
// window, newest first. Consumed by the exhaustive fallback scan.
func FindRecentOrdersByVendor(ctx context.Context, db *gorm.DB, vendorId int, since time.Time) ([]OrderRecord, error) {
	var orders []OrderRecord
	err := db.WithContext(ctx).Preload("Lines").
		Where("vendor_id = ? AND order_date >= ?", vendorId, since).
		Order("order_date desc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// SearchOrdersByItemName is the free-text tier: orders containing a line whose
// item name matches the term. The term arrives pre-shrunk from the generator.
func SearchOrdersByItemName(ctx context.Context, db *gorm.DB, term string, limit int) ([]OrderRecord, error) {
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var ids []int
	err := db.WithContext(ctx).Model(&OrderLine{}).
		Where("item_name LIKE ?", "%"+term+"%").
		Distinct("order_record_id").
		Limit(limit).
		Pluck("order_record_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []OrderRecord
	if err := db.WithContext(ctx).Preload("Lines").Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
