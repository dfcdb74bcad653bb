package repository

import (
	"strings"
	"testing"
)

// The refresh statement's column list is a behavioral contract: recency
// ordering and duplicate collapse rank open insights by their last refresh.
func TestRefreshStatementAdvancesCreatedAt(t *testing.T) {
	if !strings.Contains(refreshInsightSQL, "created_at = now()") {
		t.Fatal("refresh must reset created_at so ordering reflects the last refresh")
	}
	if !strings.Contains(refreshInsightSQL, "is_resolved = FALSE") {
		t.Fatal("refresh must only touch open insights")
	}
}
