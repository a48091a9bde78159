package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CorrectionInput is one reviewer edit that should feed the alias learning.
type CorrectionInput struct {
	Field     models.CorrectionFieldType `json:"field" validate:"required"`
	Original  string                     `json:"original"`
	Corrected string                     `json:"corrected" validate:"required"`
}

// ConfirmLineInput carries the reviewer-approved values for one line item.
// MatchedOrderLineId overrides the stored match; nil keeps it.
type ConfirmLineInput struct {
	LineItemId         int              `json:"line_item_id" validate:"required"`
	MatchedOrderId     *int             `json:"matched_order_id"`
	MatchedOrderLineId *int             `json:"matched_order_line_id"`
	ConfirmedQty       decimal.Decimal  `json:"confirmed_qty" validate:"required"`
	ConfirmedUnitPrice decimal.Decimal  `json:"confirmed_unit_price"`
	ConfirmedAmount    decimal.Decimal  `json:"confirmed_amount"`
	Corrections        []CorrectionInput `json:"corrections" validate:"dive"`
}

type ConfirmStatementInput struct {
	StatementId int                `json:"statement_id" validate:"required"`
	ConfirmedBy string             `json:"confirmed_by" validate:"required"`
	Lines       []ConfirmLineInput `json:"lines" validate:"required,dive"`
	// SkipReceiptWrite is set by the auto-confirm path, where the received
	// quantities are already on record and must not be booked twice.
	SkipReceiptWrite bool `json:"-"`
}

var validate = validator.New()

// ConfirmStatement applies a reviewer confirmation in one transaction: order
// line receipt updates, receipt history, corrections, alias learning, and the
// terminal status flip. Any failure rolls the whole confirmation back. A
// statement that already reached Confirmed or Rejected is never touched.
func ConfirmStatement(ctx context.Context, db *gorm.DB, input ConfirmStatementInput) error {
	if err := validate.Struct(input); err != nil {
		return utils.NewValidationError("input", validationSummary(err))
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stmt models.Statement
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("LineItems").
			Take(&stmt, input.StatementId).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return utils.NewPersistenceError("load statement", err)
		}
		if stmt.Status.IsTerminal() {
			return utils.NewValidationError("status", "statement is already finalized")
		}
		if stmt.Status != models.StatementStatusExtracted {
			return utils.NewValidationError("status", "statement is not awaiting confirmation")
		}

		lineById := map[int]*models.StatementLineItem{}
		for i := range stmt.LineItems {
			lineById[stmt.LineItems[i].ID] = &stmt.LineItems[i]
		}

		var corrections []models.Correction
		for _, in := range input.Lines {
			li, ok := lineById[in.LineItemId]
			if !ok {
				return utils.NewValidationError("line_item_id", "line does not belong to this statement")
			}

			matchedOrderId := li.MatchedOrderId
			matchedLineId := li.MatchedOrderLineId
			if in.MatchedOrderLineId != nil {
				matchedOrderId = in.MatchedOrderId
				matchedLineId = in.MatchedOrderLineId
			}
			// A line confirmed against an order outside the resolved one needs
			// the explicit per-line override; a stale stored match does not
			// silently cross orders.
			if matchedOrderId != nil && stmt.ResolvedOrderId != nil &&
				*matchedOrderId != *stmt.ResolvedOrderId && in.MatchedOrderLineId == nil {
				return utils.NewValidationError("matched_order_id", "line match crosses the resolved order without an override")
			}

			var overrideOid *int
			if matchedLineId != nil {
				var orderLine models.OrderLine
				if err := tx.Take(&orderLine, *matchedLineId).Error; err != nil {
					return utils.NewValidationError("matched_order_line_id", "matched order line not found")
				}
				if in.MatchedOrderLineId != nil {
					oid, err := overrideOrderId(in.MatchedOrderId, &orderLine)
					if err != nil {
						return err
					}
					overrideOid = &oid
				}
				if !input.SkipReceiptWrite {
					newReceived := orderLine.ReceivedQty.Add(in.ConfirmedQty)
					if err := tx.Model(&models.OrderLine{}).
						Where("id = ?", orderLine.ID).
						Update("received_qty", newReceived).Error; err != nil {
						return utils.NewPersistenceError("update received qty", err)
					}
				}
				history := models.ReceiptHistory{
					OrderRecordId:       orderLine.OrderRecordId,
					OrderLineId:         orderLine.ID,
					StatementId:         stmt.ID,
					StatementLineItemId: li.ID,
					ReceivedQty:         in.ConfirmedQty,
					UnitPrice:           in.ConfirmedUnitPrice,
					Amount:              in.ConfirmedAmount,
					RecordedBy:          input.ConfirmedBy,
					RecordedAt:          now,
				}
				if err := tx.Create(&history).Error; err != nil {
					return utils.NewPersistenceError("create receipt history", err)
				}
			}

			qty := in.ConfirmedQty
			price := in.ConfirmedUnitPrice
			amount := in.ConfirmedAmount
			lineUpdates := map[string]interface{}{
				"confirmed_qty":        &qty,
				"confirmed_unit_price": &price,
				"confirmed_amount":     &amount,
			}
			if in.MatchedOrderLineId != nil {
				lineUpdates["matched_order_id"] = overrideOid
				lineUpdates["matched_order_line_id"] = in.MatchedOrderLineId
			}
			if err := tx.Model(&models.StatementLineItem{}).
				Where("id = ?", li.ID).
				Updates(lineUpdates).Error; err != nil {
				return utils.NewPersistenceError("update line item", err)
			}

			for _, c := range in.Corrections {
				corrections = append(corrections, models.Correction{
					StatementLineItemId: li.ID,
					FieldType:           c.Field,
					OriginalText:        c.Original,
					CorrectedText:       c.Corrected,
				})
			}

			// Learn the OCR-name alias from confirmed item matches so the
			// generator short-circuits next time the same garble shows up.
			if matchedLineId != nil && li.Name != "" {
				var orderLine models.OrderLine
				if err := tx.Take(&orderLine, *matchedLineId).Error; err == nil {
					if orderLine.ItemName != li.Name {
						if err := models.UpsertItemAlias(ctx, tx, li.Name, orderLine.ItemName, orderLine.Specification); err != nil {
							return utils.NewPersistenceError("upsert item alias", err)
						}
					}
				}
			}
		}

		if len(corrections) > 0 {
			if err := models.SaveCorrections(ctx, tx, corrections); err != nil {
				return utils.NewPersistenceError("save corrections", err)
			}
		}

		confirmedBy := input.ConfirmedBy
		return tx.Model(&models.Statement{}).
			Where("id = ? AND status = ?", stmt.ID, models.StatementStatusExtracted).
			Updates(map[string]interface{}{
				"status":          models.StatementStatusConfirmed,
				"confirmed_at":    &now,
				"confirmed_by":    &confirmedBy,
				"locked_by":       nil,
				"lock_expires_at": nil,
			}).Error
	})
}

// overrideOrderId resolves the order id persisted for an overridden line
// match. The stored id always comes from the order line itself; a supplied
// order id naming a different order is rejected instead of landing on the
// line item while the receipt history records the true order.
func overrideOrderId(supplied *int, orderLine *models.OrderLine) (int, error) {
	if supplied != nil && *supplied != orderLine.OrderRecordId {
		return 0, utils.NewValidationError("matched_order_id", "matched order line belongs to a different order")
	}
	return orderLine.OrderRecordId, nil
}

// RejectStatement is the terminal discard: no order mutation, no history. Only
// an Extracted statement can be rejected; everything else is reported back.
func RejectStatement(ctx context.Context, db *gorm.DB, statementId int, rejectedBy string) error {
	now := time.Now().UTC()
	result := db.WithContext(ctx).Model(&models.Statement{}).
		Where("id = ? AND status = ?", statementId, models.StatementStatusExtracted).
		Updates(map[string]interface{}{
			"status":          models.StatementStatusRejected,
			"confirmed_at":    &now,
			"confirmed_by":    &rejectedBy,
			"locked_by":       nil,
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return utils.NewPersistenceError("reject statement", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.NewValidationError("status", "statement is not awaiting review")
	}
	return nil
}

// RequeueStatement puts a failed statement back in line immediately, clearing
// the backoff. Used by the ops tool and the retry endpoint.
func RequeueStatement(ctx context.Context, db *gorm.DB, statementId int) error {
	result := db.WithContext(ctx).Model(&models.Statement{}).
		Where("id = ? AND status = ?", statementId, models.StatementStatusFailed).
		Updates(map[string]interface{}{
			"status":          models.StatementStatusQueued,
			"next_retry_at":   nil,
			"locked_by":       nil,
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return utils.NewPersistenceError("requeue statement", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.NewValidationError("status", "statement is not in a failed state")
	}
	return nil
}

// TryAutoConfirm fires after a clean extraction when the quantity verdict
// holds and every matched order line already shows a received quantity on
// record. It reuses the human confirmation path with the extracted values, so
// all invariants (single transaction, terminal guard) hold identically. A
// human confirm that raced us wins; that surfaces as a status mismatch which
// is swallowed here.
func TryAutoConfirm(ctx context.Context, db *gorm.DB, statementId int) (bool, error) {
	var stmt models.Statement
	if err := db.WithContext(ctx).Preload("LineItems").Take(&stmt, statementId).Error; err != nil {
		return false, err
	}
	if stmt.Status != models.StatementStatusExtracted ||
		stmt.QuantityMatched == nil || !*stmt.QuantityMatched {
		return false, nil
	}

	input := ConfirmStatementInput{
		StatementId:      stmt.ID,
		ConfirmedBy:      "auto-confirm",
		SkipReceiptWrite: true,
	}
	for _, li := range stmt.LineItems {
		if li.MatchedOrderLineId == nil {
			return false, nil
		}
		var orderLine models.OrderLine
		if err := db.WithContext(ctx).Take(&orderLine, *li.MatchedOrderLineId).Error; err != nil {
			return false, err
		}
		if !orderLine.ReceivedQty.IsPositive() {
			return false, nil
		}
		input.Lines = append(input.Lines, ConfirmLineInput{
			LineItemId:         li.ID,
			ConfirmedQty:       li.Qty,
			ConfirmedUnitPrice: li.UnitPrice,
			ConfirmedAmount:    li.Amount,
		})
	}

	err := ConfirmStatement(ctx, db, input)
	if utils.IsValidationError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func validationSummary(err error) string {
	fields := utils.ProcessValidationErrors(err)
	for field, msg := range fields {
		return field + ": " + msg
	}
	return err.Error()
}
