package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
)

func TestOverrideOrderId(t *testing.T) {
	orderLine := &models.OrderLine{ID: 11, OrderRecordId: 3}

	// The persisted order id comes from the order line when none is supplied.
	oid, err := overrideOrderId(nil, orderLine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oid != 3 {
		t.Fatalf("expected order id 3, got %d", oid)
	}

	// A supplied id that agrees with the line's order is accepted.
	same := 3
	oid, err = overrideOrderId(&same, orderLine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oid != 3 {
		t.Fatalf("expected order id 3, got %d", oid)
	}

	// A supplied id naming a different order is rejected; accepting it would
	// leave the line item pointing at one order and the receipt at another.
	other := 7
	if _, err = overrideOrderId(&other, orderLine); err == nil {
		t.Fatal("expected a validation error for a mismatched order id")
	} else if !utils.IsValidationError(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
