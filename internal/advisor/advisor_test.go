package advisor

import (
	"testing"

	"github.com/lineflow/scheduler/internal/domain"
)

func TestValidateCoverageAcceptsExactPermutation(t *testing.T) {
	pending := []domain.SalesOrder{{ID: "SO-001"}, {ID: "SO-002"}, {ID: "SO-003"}}
	if err := validateCoverage([]string{"SO-003", "SO-001", "SO-002"}, pending); err != nil {
		t.Fatalf("expected valid permutation to pass, got %v", err)
	}
}

func TestValidateCoverageRejectsMissingID(t *testing.T) {
	pending := []domain.SalesOrder{{ID: "SO-001"}, {ID: "SO-002"}}
	if err := validateCoverage([]string{"SO-001"}, pending); err == nil {
		t.Fatal("expected error for incomplete coverage")
	}
}

func TestValidateCoverageRejectsUnknownID(t *testing.T) {
	pending := []domain.SalesOrder{{ID: "SO-001"}}
	if err := validateCoverage([]string{"SO-999"}, pending); err == nil {
		t.Fatal("expected error for unknown sales order id")
	}
}

func TestValidateCoverageRejectsDuplicate(t *testing.T) {
	pending := []domain.SalesOrder{{ID: "SO-001"}, {ID: "SO-002"}}
	if err := validateCoverage([]string{"SO-001", "SO-001"}, pending); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}
