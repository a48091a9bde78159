package models

type StatementStatus string

const (
	StatementStatusPending    StatementStatus = "Pending"
	StatementStatusQueued     StatementStatus = "Queued"
	StatementStatusProcessing StatementStatus = "Processing"
	StatementStatusExtracted  StatementStatus = "Extracted"
	StatementStatusConfirmed  StatementStatus = "Confirmed"
	StatementStatusRejected   StatementStatus = "Rejected"
	StatementStatusFailed     StatementStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed.
// Failed is NOT terminal; it may be retried indefinitely.
func (s StatementStatus) IsTerminal() bool {
	return s == StatementStatusConfirmed || s == StatementStatusRejected
}

// Claimable statuses may be picked up by a worker.
func (s StatementStatus) Claimable() bool {
	return s == StatementStatusPending || s == StatementStatusQueued || s == StatementStatusFailed
}

type StatementMode string

const (
	StatementModeFull         StatementMode = "Full"
	StatementModeQuantityOnly StatementMode = "QuantityOnly"
)

type ConfidenceTier string

const (
	ConfidenceTierHigh      ConfidenceTier = "High"
	ConfidenceTierMedium    ConfidenceTier = "Medium"
	ConfidenceTierLow       ConfidenceTier = "Low"
	ConfidenceTierUnmatched ConfidenceTier = "Unmatched"
)

// TierForScore buckets a 0-100 score. Tiers are monotonic in score.
func TierForScore(score int) ConfidenceTier {
	switch {
	case score >= 80:
		return ConfidenceTierHigh
	case score >= 50:
		return ConfidenceTierMedium
	case score > 0:
		return ConfidenceTierLow
	default:
		return ConfidenceTierUnmatched
	}
}

// InferenceConfidence is the per-item source confidence derived from the
// extraction tier of the line itself.
func (t ConfidenceTier) InferenceConfidence() float64 {
	switch t {
	case ConfidenceTierHigh:
		return 0.85
	case ConfidenceTierMedium:
		return 0.7
	default:
		return 0.55
	}
}

// OrderNumberSource identifies which spatial/extraction source produced a
// line's inferred order number. Ordering here mirrors resolver priority.
type OrderNumberSource string

const (
	OrderNumberSourceBracket     OrderNumberSource = "Bracket"
	OrderNumberSourceHandwriting OrderNumberSource = "Handwriting"
	OrderNumberSourceMargin      OrderNumberSource = "Margin"
	OrderNumberSourcePerItem     OrderNumberSource = "PerItem"
	OrderNumberSourceGlobal      OrderNumberSource = "Global"
)

type CorrectionFieldType string

const (
	CorrectionFieldItemName    CorrectionFieldType = "ItemName"
	CorrectionFieldSpec        CorrectionFieldType = "Spec"
	CorrectionFieldQty         CorrectionFieldType = "Qty"
	CorrectionFieldUnitPrice   CorrectionFieldType = "UnitPrice"
	CorrectionFieldAmount      CorrectionFieldType = "Amount"
	CorrectionFieldOrderNumber CorrectionFieldType = "OrderNumber"
	CorrectionFieldVendorName  CorrectionFieldType = "VendorName"
	CorrectionFieldRemark      CorrectionFieldType = "Remark"
)
