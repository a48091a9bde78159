package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/matching"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/spatial"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"bitbucket.org/mmdatafocus/statements_backend/vision"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Processor runs the full extraction pipeline for one claimed statement.
type Processor struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Vision *vision.Client
}

var statementDateFormats = []string{
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"20060102",
	"06.01.02",
}

func parseStatementDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range statementDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// scopeForText decides the extraction scope hint from the raw OCR text: more
// than one distinct valid document number means the statement spans orders.
func scopeForText(rawText string) vision.ExtractionScope {
	distinct := map[string]bool{}
	for _, tok := range strings.Fields(rawText) {
		n := matching.NormalizeOrderNumber(tok)
		if matching.ValidOrderNumber(n) {
			distinct[n] = true
		}
	}
	if len(distinct) > 1 {
		return vision.ScopeMultiOrder
	}
	return vision.ScopeSingleOrder
}

func tierForDraftConfidence(conf string) models.ConfidenceTier {
	switch strings.ToLower(strings.TrimSpace(conf)) {
	case "high":
		return models.ConfidenceTierHigh
	case "medium":
		return models.ConfidenceTierMedium
	case "low":
		return models.ConfidenceTierLow
	default:
		return models.ConfidenceTierMedium
	}
}

// needsSecondaryPasses checks the primary draft quality: over half the items
// low confidence, or over half missing a usable document number.
func needsSecondaryPasses(draft *vision.Draft) bool {
	if len(draft.Items) == 0 {
		return true
	}
	low, missing := 0, 0
	for _, item := range draft.Items {
		if strings.EqualFold(item.Confidence, "low") {
			low++
		}
		if !matching.ValidOrderNumber(matching.NormalizeOrderNumber(item.OrderNumber)) {
			missing++
		}
	}
	half := (len(draft.Items) + 1) / 2
	return low >= half || missing >= half
}

// ProcessStatement takes a freshly claimed statement from Processing to
// Extracted, or returns a stage-tagged error for MarkExtractionFailed.
func (p *Processor) ProcessStatement(ctx context.Context, stmt *models.Statement) error {
	logger := p.Logger.WithFields(logrus.Fields{
		"module":       "workflow",
		"statement_id": stmt.ID,
	})

	raw, err := utils.FetchStatementImage(ctx, stmt.ImageObjectKey)
	if err != nil {
		return utils.NewExtractionError("image", err)
	}
	img, err := vision.Preprocess(raw)
	if err != nil {
		return utils.NewExtractionError("image", err)
	}

	ocr, err := vision.RecognizeTiled(ctx, p.Vision, img)
	if err != nil {
		return utils.NewExtractionError("vision", err)
	}

	draft, err := p.Vision.ExtractDraft(ctx, img, ocr.RawText, scopeForText(ocr.RawText))
	if err != nil {
		return utils.NewExtractionError("extract", err)
	}

	// Secondary passes only fire on a weak primary result. They refine an
	// otherwise usable draft, so their own failures are logged and skipped.
	var extraNumbers []string
	var brackets []vision.BracketMapping
	var margins []vision.MarginRange
	if needsSecondaryPasses(draft) {
		if nums, nErr := p.Vision.ExtractNumbers(ctx, img); nErr != nil {
			logger.WithField("stage", "numbers").Warn(nErr.Error())
		} else {
			extraNumbers = nums
		}
		if config.AuxiliaryPassesEnabled() {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				if b, bErr := p.Vision.ExtractBrackets(ctx, img); bErr != nil {
					logger.WithField("stage", "brackets").Warn(bErr.Error())
				} else {
					brackets = b
				}
			}()
			go func() {
				defer wg.Done()
				if m, mErr := p.Vision.ExtractMarginRanges(ctx, img); mErr != nil {
					logger.WithField("stage", "margins").Warn(mErr.Error())
				} else {
					margins = m
				}
			}()
			wg.Wait()
		}
	}

	// Per-line normalized numbers, then document-wide fill of the gaps.
	numbers := make([]string, len(draft.Items))
	for i, item := range draft.Items {
		numbers[i] = matching.NormalizeOrderNumber(item.OrderNumber)
	}
	numbers = applyExtraNumbers(numbers, extraNumbers)
	numbers = matching.InferMissingNumbers(numbers)

	vendor, err := p.resolveVendor(ctx, draft, ocr.RawText)
	if err != nil {
		return utils.NewExtractionError("match", err)
	}
	vendorHint := draft.VendorName
	if vendor != nil {
		vendorHint = vendor.Name
	}

	ocrLines := make([]matching.OCRLine, len(draft.Items))
	for i, item := range draft.Items {
		ocrLines[i] = matching.OCRLine{
			Name:          item.Name,
			Specification: item.Specification,
			Qty:           item.Qty,
			OrderNumber:   numbers[i],
			Remark:        item.Remark,
		}
	}

	registry := &models.GormOrderRegistry{DB: p.DB}
	correction, err := matching.CorrectDocumentNumber(ctx, registry, ocrLines, vendorHint)
	if err != nil {
		return utils.NewExtractionError("match", err)
	}
	if correction != nil {
		logger.WithFields(logrus.Fields{
			"original":  correction.Original,
			"corrected": correction.Corrected,
		}).Info("document number corrected against order registry")
		for i := range ocrLines {
			if ocrLines[i].OrderNumber == correction.Original {
				ocrLines[i].OrderNumber = correction.Corrected
				numbers[i] = correction.Corrected
			}
		}
		if vendor == nil && correction.VendorName != "" {
			vendorHint = correction.VendorName
		}
	}

	inferences := inferLineNumbers(draft, ocr, numbers, brackets, margins)
	for i, inf := range inferences {
		if inf.OrderNumber != "" {
			ocrLines[i].OrderNumber = inf.OrderNumber
		}
	}

	items, quantityMatched, err := p.matchLines(ctx, registry, stmt, draft, ocrLines, inferences, vendorHint)
	if err != nil {
		return utils.NewExtractionError("match", err)
	}

	matcher := &matching.SetMatcher{Registry: registry}
	docNumber, _ := matching.MostFrequentNumber(numbers)
	setResult, err := matcher.Match(ctx, ocrLines, docNumber, vendorHint)
	if err != nil {
		return utils.NewExtractionError("match", err)
	}

	return p.persistExtraction(ctx, stmt, draft, vendor, setResult, items, quantityMatched)
}

// applyExtraNumbers folds the dedicated-numbers pass into the per-line slots:
// it only helps when it finds exactly one valid number the draft missed.
func applyExtraNumbers(numbers []string, extra []string) []string {
	valid := map[string]bool{}
	for _, n := range extra {
		norm := matching.NormalizeOrderNumber(n)
		if matching.ValidOrderNumber(norm) {
			valid[norm] = true
		}
	}
	if len(valid) != 1 {
		return numbers
	}
	var only string
	for n := range valid {
		only = n
	}
	hasAny := false
	for _, n := range numbers {
		if matching.ValidOrderNumber(n) {
			hasAny = true
			break
		}
	}
	if hasAny {
		return numbers
	}
	for i := range numbers {
		numbers[i] = only
	}
	return numbers
}

func (p *Processor) resolveVendor(ctx context.Context, draft *vision.Draft, rawText string) (*models.Vendor, error) {
	if draft.VendorName != "" {
		if v, _, err := models.LookupVendor(ctx, p.DB, draft.VendorName); err != nil {
			return nil, err
		} else if v != nil {
			return v, nil
		}
	}
	if draft.VendorNameTranslit != "" {
		if v, _, err := models.LookupVendor(ctx, p.DB, draft.VendorNameTranslit); err != nil {
			return nil, err
		} else if v != nil {
			return v, nil
		}
	}
	return models.LookupVendorInRawText(ctx, p.DB, strings.Split(rawText, "\n"))
}

func inferLineNumbers(draft *vision.Draft, ocr *vision.VisionResult, numbers []string, brackets []vision.BracketMapping, margins []vision.MarginRange) []spatial.Inference {
	lines := make([]spatial.LineInput, len(draft.Items))
	for i, item := range draft.Items {
		lines[i] = spatial.LineInput{
			Name:        item.Name,
			OrderNumber: numbers[i],
			Tier:        tierForDraftConfidence(item.Confidence),
		}
	}
	words := make([]spatial.Word, len(ocr.Words))
	for i, w := range ocr.Words {
		words[i] = spatial.Word{Text: w.Text, X: w.BBox.X, Y: w.BBox.Y, W: w.BBox.W, H: w.BBox.H}
	}
	bhints := make([]spatial.BracketHint, len(brackets))
	for i, b := range brackets {
		bhints[i] = spatial.BracketHint{
			StartLine:   b.StartLine,
			EndLine:     b.EndLine,
			OrderNumber: matching.NormalizeOrderNumber(b.OrderNumber),
			Confidence:  b.Confidence,
		}
	}
	rhints := make([]spatial.RangeHint, len(margins))
	for i, m := range margins {
		rhints[i] = spatial.RangeHint{
			StartLine:   m.StartLine,
			EndLine:     m.EndLine,
			OrderNumber: matching.NormalizeOrderNumber(m.OrderNumber),
		}
	}
	return spatial.Infer(lines, words, bhints, rhints)
}

// matchLines builds the persisted line items: best candidate per line plus the
// quantity verdict for the whole statement.
func (p *Processor) matchLines(ctx context.Context, registry matching.OrderRegistry, stmt *models.Statement, draft *vision.Draft, ocrLines []matching.OCRLine, inferences []spatial.Inference, vendorHint string) ([]models.StatementLineItem, bool, error) {
	generator := &matching.CandidateGenerator{
		Registry:          registry,
		Aliases:           &models.GormAliasSource{DB: p.DB},
		FallbackThreshold: config.MatchFallbackThreshold(),
	}

	items := make([]models.StatementLineItem, len(draft.Items))
	quantityMatched := len(draft.Items) > 0
	for i, item := range draft.Items {
		candidates, err := generator.Generate(ctx, ocrLines[i], vendorHint)
		if err != nil {
			return nil, false, err
		}

		li := models.StatementLineItem{
			StatementId:    stmt.ID,
			LineNo:         i + 1,
			Name:           item.Name,
			Specification:  item.Specification,
			Qty:            item.Qty,
			UnitPrice:      item.UnitPrice,
			Amount:         item.Amount,
			OrderNumberRaw: item.OrderNumber,
			Remark:         item.Remark,
			ConfidenceTier: models.ConfidenceTierUnmatched,
		}
		if inf := inferences[i]; inf.OrderNumber != "" {
			src := models.OrderNumberSource(inf.Source)
			li.InferredOrderNumber = inf.OrderNumber
			li.InferredSource = &src
			li.InferredConfidence = inf.Confidence
		}
		if len(candidates) > 0 {
			best := candidates[0]
			orderId, lineId := best.OrderId, best.LineId
			li.MatchedOrderId = &orderId
			li.MatchedOrderLineId = &lineId
			li.MatchScore = best.Score
			li.ConfidenceTier = models.TierForScore(best.Score)
			if !item.Qty.Equal(best.Qty) {
				quantityMatched = false
			}
		} else {
			quantityMatched = false
		}
		items[i] = li
	}
	return items, quantityMatched, nil
}

// persistExtraction replaces the statement's line items and flips it to
// Extracted in one transaction, clearing the claim and any prior failure.
func (p *Processor) persistExtraction(ctx context.Context, stmt *models.Statement, draft *vision.Draft, vendor *models.Vendor, setResult *matching.SetMatchResult, items []models.StatementLineItem, quantityMatched bool) error {
	updates := map[string]interface{}{
		"status":           models.StatementStatusExtracted,
		"vendor_name_raw":  draft.VendorName,
		"grand_total":      draft.GrandTotal,
		"quantity_matched": quantityMatched,
		"locked_by":        nil,
		"lock_expires_at":  nil,
		"error_message":    nil,
		"error_stage":      nil,
		"failed_at":        nil,
		"next_retry_at":    nil,
	}
	if draft.VendorNameTranslit != "" {
		updates["vendor_name_translit"] = draft.VendorNameTranslit
	}
	if date := parseStatementDate(draft.Date); date != nil {
		updates["statement_date"] = date
	}
	if vendor != nil {
		updates["vendor_id"] = vendor.ID
		updates["vendor_name_validated"] = vendor.Name
	}
	if setResult != nil && setResult.Best != nil {
		updates["resolved_order_id"] = setResult.Best.Order.ID
		updates["match_confidence"] = setResult.Best.Aggregate
	}

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("statement_id = ?", stmt.ID).Delete(&models.StatementLineItem{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Statement{}).
			Where("id = ? AND status = ?", stmt.ID, models.StatementStatusProcessing).
			Updates(updates).Error
	})
	if err != nil {
		return utils.NewExtractionError("persist", err)
	}
	return nil
}
