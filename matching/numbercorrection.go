package matching

import (
	"context"
)

// correctionFloor is the aggregate similarity a prefix-searched order must
// reach before its real number is adopted over the OCR'd one.
const correctionFloor = 65

// NumberCorrection is the outcome of the document-wide correction pass: the
// modal OCR number had no exact record, but an order sharing its date prefix
// matches the document well enough to adopt.
type NumberCorrection struct {
	Original   string
	Corrected  string
	VendorName string
	OrderId    int
	Aggregate  int
}

// CorrectDocumentNumber runs when the most frequent number across lines has no
// exact record: search by date prefix (vendor-filtered), score each candidate
// order by aggregate item/quantity similarity against the document's lines,
// and adopt the best candidate's real number (and vendor) when it clears the
// floor. Returns nil when nothing qualifies.
func CorrectDocumentNumber(ctx context.Context, registry OrderRegistry, lines []OCRLine, vendorHint string) (*NumberCorrection, error) {
	lineNumbers := make([]string, len(lines))
	for i, line := range lines {
		lineNumbers[i] = line.OrderNumber
	}
	modal, count := MostFrequentNumber(lineNumbers)
	if modal == "" || count == 0 {
		return nil, nil
	}

	exact, err := registry.FindByNumber(ctx, modal)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		// The number is real; nothing to correct.
		return nil, nil
	}

	prefix := OrderNumberPrefix(modal)
	if prefix == "" {
		return nil, nil
	}
	candidates, err := registry.FindByNumberPrefix(ctx, prefix, vendorHint)
	if err != nil {
		return nil, err
	}

	var best *NumberCorrection
	for _, order := range candidates {
		om := scoreOrderAgainstLines(order, lines)
		if om.Aggregate < correctionFloor {
			continue
		}
		if best != nil && om.Aggregate <= best.Aggregate {
			continue
		}
		number := order.PurchaseNumber
		if number == "" {
			number = order.SalesNumber
		}
		best = &NumberCorrection{
			Original:   modal,
			Corrected:  number,
			VendorName: order.VendorName,
			OrderId:    order.ID,
			Aggregate:  om.Aggregate,
		}
	}
	return best, nil
}
