package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/matching"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seeds the order registry from the purchasing department's xlsx export.
// One row per order line:
//
//	purchase_number | sales_number | vendor_name | order_date | line_no | item_name | specification | qty | unit_price | amount
//
// Rows sharing a purchase number are grouped into one order. Re-running the
// import upserts by purchase number instead of duplicating.
func main() {
	path := flag.String("file", "", "Path to the orders xlsx export (required)")
	sheet := flag.String("sheet", "", "Sheet name (defaults to the first sheet)")
	dryRun := flag.Bool("dry-run", false, "Parse and validate without writing")
	flag.Parse()

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "usage: order-import -file orders.xlsx [-sheet Sheet1] [-dry-run]")
		os.Exit(1)
	}

	f, err := excelize.OpenFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer f.Close()

	sheetName := strings.TrimSpace(*sheet)
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read sheet %s: %v\n", sheetName, err)
		os.Exit(1)
	}
	if len(rows) < 2 {
		fmt.Fprintln(os.Stderr, "sheet has no data rows")
		os.Exit(1)
	}

	orders, err := parseRows(rows[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("parsed %d orders from %d rows\n", len(orders), len(rows)-1)
	if *dryRun {
		return
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	imported := 0
	for _, order := range orders {
		if err := upsertOrder(ctx, db, order); err != nil {
			fmt.Fprintf(os.Stderr, "failed to import %s: %v\n", order.PurchaseNumber, err)
			os.Exit(1)
		}
		imported++
	}
	fmt.Printf("imported %d orders\n", imported)
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

var dateFormats = []string{"2006-01-02", "2006/01/02", "01-02-06", "1/2/06"}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func parseRows(rows [][]string) ([]*models.OrderRecord, error) {
	byNumber := map[string]*models.OrderRecord{}
	var ordered []*models.OrderRecord

	for i, row := range rows {
		purchaseNumber := matching.NormalizeOrderNumber(cell(row, 0))
		if purchaseNumber == "" {
			continue
		}
		if !matching.ValidOrderNumber(purchaseNumber) {
			return nil, fmt.Errorf("row %d: invalid purchase number %q", i+2, cell(row, 0))
		}

		order, ok := byNumber[purchaseNumber]
		if !ok {
			orderDate, err := parseDate(cell(row, 3))
			if err != nil {
				return nil, fmt.Errorf("row %d: %v", i+2, err)
			}
			order = &models.OrderRecord{
				PurchaseNumber: purchaseNumber,
				SalesNumber:    matching.NormalizeOrderNumber(cell(row, 1)),
				VendorName:     cell(row, 2),
				OrderDate:      orderDate,
			}
			byNumber[purchaseNumber] = order
			ordered = append(ordered, order)
		}

		lineNo := len(order.Lines) + 1
		if v := cell(row, 4); v != "" {
			fmt.Sscanf(v, "%d", &lineNo)
		}
		qty, err := utils.StringToDecimal(cell(row, 7))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad qty %q", i+2, cell(row, 7))
		}
		unitPrice, _ := utils.StringToDecimal(cell(row, 8))
		amount, _ := utils.StringToDecimal(cell(row, 9))

		order.Lines = append(order.Lines, models.OrderLine{
			LineNo:        lineNo,
			ItemName:      cell(row, 5),
			Specification: cell(row, 6),
			Qty:           qty,
			UnitPrice:     unitPrice,
			Amount:        amount,
		})
	}
	return ordered, nil
}

func upsertOrder(ctx context.Context, db *gorm.DB, order *models.OrderRecord) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OrderRecord
		err := tx.Where("purchase_number = ?", order.PurchaseNumber).Take(&existing).Error
		if err == nil {
			// Replace the line set; received quantities live in receipt
			// history and survive a re-import.
			if err := tx.Where("order_record_id = ?", existing.ID).Delete(&models.OrderLine{}).Error; err != nil {
				return err
			}
			for i := range order.Lines {
				order.Lines[i].OrderRecordId = existing.ID
			}
			if err := tx.Create(&order.Lines).Error; err != nil {
				return err
			}
			return tx.Model(&models.OrderRecord{}).Where("id = ?", existing.ID).
				Updates(map[string]interface{}{
					"sales_number": order.SalesNumber,
					"vendor_name":  order.VendorName,
					"order_date":   order.OrderDate,
				}).Error
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(order).Error; err != nil {
			return err
		}
		return nil
	})
}
