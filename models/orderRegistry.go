package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/matching"
	"gorm.io/gorm"
)

// GormOrderRegistry adapts the GORM order tables to the matching package's
// registry interface.
type GormOrderRegistry struct {
	DB *gorm.DB
}

func (r *GormOrderRegistry) FindByNumber(ctx context.Context, number string) (*matching.Order, error) {
	order, err := FindOrderByNumber(ctx, r.DB, number)
	if err != nil || order == nil {
		return nil, err
	}
	converted := toMatchingOrder(*order)
	return &converted, nil
}

func (r *GormOrderRegistry) FindByNumberPrefix(ctx context.Context, prefix string, vendorHint string) ([]matching.Order, error) {
	var vendorId *int
	if vendorHint != "" {
		vendor, _, err := LookupVendor(ctx, r.DB, vendorHint)
		if err != nil {
			return nil, err
		}
		if vendor != nil {
			vendorId = &vendor.ID
		}
	}
	orders, err := FindOrdersByNumberPrefix(ctx, r.DB, prefix, vendorId)
	if err != nil {
		return nil, err
	}
	return toMatchingOrders(orders), nil
}

func (r *GormOrderRegistry) RecentByVendor(ctx context.Context, vendorHint string, since time.Time) ([]matching.Order, error) {
	vendor, _, err := LookupVendor(ctx, r.DB, vendorHint)
	if err != nil || vendor == nil {
		return nil, err
	}
	orders, err := FindRecentOrdersByVendor(ctx, r.DB, vendor.ID, since)
	if err != nil {
		return nil, err
	}
	return toMatchingOrders(orders), nil
}

func (r *GormOrderRegistry) SearchByItemName(ctx context.Context, term string, limit int) ([]matching.Order, error) {
	orders, err := SearchOrdersByItemName(ctx, r.DB, term, limit)
	if err != nil {
		return nil, err
	}
	return toMatchingOrders(orders), nil
}

// GormAliasSource feeds learned item aliases to the candidate generator.
type GormAliasSource struct {
	DB *gorm.DB
}

func (s *GormAliasSource) Lookup(ctx context.Context, ocrName string) (*matching.Alias, error) {
	alias, err := FindItemAlias(ctx, s.DB, ocrName)
	if err != nil || alias == nil {
		return nil, err
	}
	return &matching.Alias{
		CanonicalName: alias.CanonicalName,
		CanonicalSpec: alias.CanonicalSpec,
		Occurrences:   alias.Occurrences,
	}, nil
}

func toMatchingOrder(order OrderRecord) matching.Order {
	lines := make([]matching.Line, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, matching.Line{
			ID:            l.ID,
			LineNo:        l.LineNo,
			ItemName:      l.ItemName,
			Specification: l.Specification,
			Qty:           l.Qty,
			ReceivedQty:   l.ReceivedQty,
			UnitPrice:     l.UnitPrice,
			Amount:        l.Amount,
		})
	}
	return matching.Order{
		ID:             order.ID,
		PurchaseNumber: order.PurchaseNumber,
		SalesNumber:    order.SalesNumber,
		VendorName:     order.VendorName,
		OrderDate:      order.OrderDate,
		Lines:          lines,
	}
}

func toMatchingOrders(orders []OrderRecord) []matching.Order {
	out := make([]matching.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, toMatchingOrder(o))
	}
	return out
}
