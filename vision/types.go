package vision

import "github.com/shopspring/decimal"

// BBox is a word bounding box in pixel coordinates of the submitted image.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type OCRWord struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// VisionResult is the raw OCR output: full text plus positioned words.
type VisionResult struct {
	RawText string    `json:"raw_text"`
	Words   []OCRWord `json:"words"`
}

// ExtractionScope hints the model whether the statement covers one order or
// several.
type ExtractionScope string

const (
	ScopeSingleOrder ExtractionScope = "single_order"
	ScopeMultiOrder  ExtractionScope = "multi_order"
)

// Draft is the structured extraction-model output for one statement image.
type Draft struct {
	VendorName         string          `json:"vendor_name"`
	VendorNameTranslit string          `json:"vendor_name_translit"`
	Date               string          `json:"date"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	Items              []DraftItem     `json:"items"`
}

type DraftItem struct {
	Name          string          `json:"name"`
	Specification string          `json:"specification"`
	Qty           decimal.Decimal `json:"qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Amount        decimal.Decimal `json:"amount"`
	OrderNumber   string          `json:"order_number"`
	Remark        string          `json:"remark"`
	Confidence    string          `json:"confidence"` // high / medium / low
}

// BracketMapping and MarginRange are the spatial hints from the two auxiliary
// extraction calls.
type BracketMapping struct {
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	OrderNumber string  `json:"order_number"`
	Confidence  float64 `json:"confidence"`
}

type MarginRange struct {
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	OrderNumber string `json:"order_number"`
}
