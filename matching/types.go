package matching

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order and Line are the registry-side view the scorers work against. They are
// deliberately decoupled from the GORM models so the whole package stays pure
// and testable without a database; models provides an adapter.
type Order struct {
	ID             int
	PurchaseNumber string
	SalesNumber    string
	VendorName     string
	OrderDate      time.Time
	Lines          []Line
}

type Line struct {
	ID            int
	LineNo        int
	ItemName      string
	Specification string
	Qty           decimal.Decimal
	ReceivedQty   decimal.Decimal
	UnitPrice     decimal.Decimal
	Amount        decimal.Decimal
}

// OCRLine is one extracted statement line as the matcher sees it.
type OCRLine struct {
	Name          string
	Specification string
	Qty           decimal.Decimal
	OrderNumber   string
	Remark        string
}

// OrderRegistry is the queryable order store the generator searches against.
type OrderRegistry interface {
	// FindByNumber matches the purchase-side or sales-side number exactly.
	FindByNumber(ctx context.Context, number string) (*Order, error)
	// FindByNumberPrefix matches orders whose number shares the given prefix,
	// optionally restricted to vendors similar to vendorHint.
	FindByNumberPrefix(ctx context.Context, prefix string, vendorHint string) ([]Order, error)
	// RecentByVendor returns the hinted vendor's orders since the given time.
	RecentByVendor(ctx context.Context, vendorHint string, since time.Time) ([]Order, error)
	// SearchByItemName does a free-text line search, order-number independent.
	SearchByItemName(ctx context.Context, term string, limit int) ([]Order, error)
}

// Alias is a learned OCR-name -> canonical-name mapping fed back from human
// confirmations.
type Alias struct {
	CanonicalName string
	CanonicalSpec string
	Occurrences   int
}

type AliasSource interface {
	Lookup(ctx context.Context, ocrName string) (*Alias, error)
}

// Candidate is an ephemeral scored hypothesis linking one OCR line to one
// order line. Never persisted.
type Candidate struct {
	OrderId       int
	LineId        int
	OrderNumber   string
	ItemName      string
	Specification string
	Qty           decimal.Decimal
	UnitPrice     decimal.Decimal
	OrderDate     time.Time
	Score         int
	Reasons       []string
}
