package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptHistory is the append-only trail of received quantities written when
// a statement is confirmed. One row per confirmed line.
type ReceiptHistory struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	OrderRecordId       int             `gorm:"index;not null" json:"order_record_id"`
	OrderLineId         int             `gorm:"index;not null" json:"order_line_id"`
	StatementId         int             `gorm:"index;not null" json:"statement_id"`
	StatementLineItemId int             `gorm:"not null" json:"statement_line_item_id"`
	ReceivedQty         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	UnitPrice           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	RecordedBy          string          `gorm:"size:255" json:"recorded_by"`
	RecordedAt          time.Time       `gorm:"not null" json:"recorded_at"`
}
