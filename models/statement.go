package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Statement struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	Status              StatementStatus `gorm:"type:enum('Pending','Queued','Processing','Extracted','Confirmed','Rejected','Failed');default:Pending;index" json:"status"`
	Mode                StatementMode   `gorm:"type:enum('Full','QuantityOnly');default:Full" json:"mode"`
	VendorNameRaw       string          `gorm:"size:255" json:"vendor_name_raw"`
	VendorNameTranslit  string          `gorm:"size:255" json:"vendor_name_translit"`
	VendorId            *int            `gorm:"index;default:null" json:"vendor_id"`
	VendorNameValidated string          `gorm:"size:255;default:null" json:"vendor_name_validated"`
	StatementDate       *time.Time      `gorm:"default:null" json:"statement_date"`
	GrandTotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	ImageObjectKey      string          `gorm:"size:512;not null" json:"image_object_key"`
	ResolvedOrderId     *int            `gorm:"index;default:null" json:"resolved_order_id"`
	MatchConfidence     int             `gorm:"default:0" json:"match_confidence"`
	QuantityMatched     *bool           `gorm:"not null;default:false" json:"quantity_matched"`
	LockedBy            *string         `gorm:"size:64;default:null" json:"locked_by"`
	LockExpiresAt       *time.Time      `gorm:"default:null" json:"lock_expires_at"`
	RetryCount          int             `gorm:"default:0" json:"retry_count"`
	NextRetryAt         *time.Time      `gorm:"default:null" json:"next_retry_at"`
	ErrorMessage        *string         `gorm:"type:text;default:null" json:"error_message"`
	ErrorStage          *string         `gorm:"size:64;default:null" json:"error_stage"`
	FailedAt            *time.Time      `gorm:"default:null" json:"failed_at"`
	ConfirmedAt         *time.Time      `gorm:"default:null" json:"confirmed_at"`
	ConfirmedBy         *string         `gorm:"size:255;default:null" json:"confirmed_by"`
	LineItems           []StatementLineItem `json:"line_items"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type StatementLineItem struct {
	ID                 int                `gorm:"primary_key" json:"id"`
	StatementId        int                `gorm:"index;not null" json:"statement_id"`
	LineNo             int                `gorm:"not null" json:"line_no"`
	Name               string             `gorm:"size:255" json:"name"`
	Specification      string             `gorm:"size:255;default:null" json:"specification"`
	Qty                decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice          decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount             decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"amount"`
	OrderNumberRaw     string             `gorm:"size:255;default:null" json:"order_number_raw"`
	Remark             string             `gorm:"size:512;default:null" json:"remark"`
	ConfidenceTier     ConfidenceTier     `gorm:"type:enum('High','Medium','Low','Unmatched');default:Unmatched" json:"confidence_tier"`
	InferredOrderNumber string            `gorm:"size:255;default:null" json:"inferred_order_number"`
	InferredSource     *OrderNumberSource `gorm:"type:enum('Bracket','Handwriting','Margin','PerItem','Global');default:null" json:"inferred_source"`
	InferredConfidence float64            `gorm:"default:0" json:"inferred_confidence"`
	MatchedOrderId     *int               `gorm:"index;default:null" json:"matched_order_id"`
	MatchedOrderLineId *int               `gorm:"index;default:null" json:"matched_order_line_id"`
	MatchScore         int                `gorm:"default:0" json:"match_score"`
	ConfirmedQty       *decimal.Decimal   `gorm:"type:decimal(20,4);default:null" json:"confirmed_qty"`
	ConfirmedUnitPrice *decimal.Decimal   `gorm:"type:decimal(20,4);default:null" json:"confirmed_unit_price"`
	ConfirmedAmount    *decimal.Decimal   `gorm:"type:decimal(20,4);default:null" json:"confirmed_amount"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

var claimableStatuses = []StatementStatus{
	StatementStatusPending,
	StatementStatusQueued,
	StatementStatusFailed,
}

// ClaimStatement is the single atomic conditional update that gives a worker
// exclusive, time-limited ownership of a statement. Exactly one of any number
// of concurrent claims succeeds: the UPDATE only matches while the row is in a
// claimable status, its lock is free or expired, and any retry backoff has
// elapsed. Returns nil without error when the claim was lost.
func ClaimStatement(ctx context.Context, db *gorm.DB, id int, workerId string, timeout time.Duration) (*Statement, error) {
	now := time.Now().UTC()
	expiry := now.Add(timeout)

	res := db.WithContext(ctx).Model(&Statement{}).
		Where("id = ? AND status IN ?", id, claimableStatuses).
		Where("locked_by IS NULL OR lock_expires_at < ?", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Updates(map[string]interface{}{
			"status":          StatementStatusProcessing,
			"locked_by":       workerId,
			"lock_expires_at": expiry,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var stmt Statement
	if err := db.WithContext(ctx).Preload("LineItems").Take(&stmt, id).Error; err != nil {
		return nil, err
	}
	return &stmt, nil
}

// ClaimNextStatement claims the oldest due claimable statement, if any.
// Candidates are attempted in order; losing a race to another worker just
// moves on to the next candidate.
func ClaimNextStatement(ctx context.Context, db *gorm.DB, workerId string, timeout time.Duration) (*Statement, error) {
	now := time.Now().UTC()

	var ids []int
	err := db.WithContext(ctx).Model(&Statement{}).
		Where("status IN ?", claimableStatuses).
		Where("locked_by IS NULL OR lock_expires_at < ?", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at asc").
		Limit(config.SearchLimit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		stmt, err := ClaimStatement(ctx, db, id, workerId, timeout)
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			return stmt, nil
		}
	}
	return nil, nil
}

// SweepStaleProcessing fails statements stuck in Processing past their lock
// expiry (crashed worker). The failure is retryable, so the sweep alone
// guarantees forward progress. Returns the number of rows swept.
func SweepStaleProcessing(ctx context.Context, db *gorm.DB, timeout time.Duration) (int64, error) {
	now := time.Now().UTC()
	msg := "processing claim expired; worker presumed crashed"
	stage := "sweep"

	res := db.WithContext(ctx).Model(&Statement{}).
		Where("status = ? AND lock_expires_at < ?", StatementStatusProcessing, now).
		Updates(map[string]interface{}{
			"status":          StatementStatusFailed,
			"error_message":   &msg,
			"error_stage":     &stage,
			"failed_at":       &now,
			"retry_count":     gorm.Expr("retry_count + 1"),
			"next_retry_at":   now.Add(timeout / 2),
			"locked_by":       nil,
			"lock_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}
