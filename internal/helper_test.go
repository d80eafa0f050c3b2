package internal_test

import (
	"testing"

	"github.com/MegaGrindStone/go-sql-rag/internal"
)

func TestCountTokens(t *testing.T) {
	empty, err := internal.CountTokens("")
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if empty != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", empty)
	}

	short, err := internal.CountTokens("How many white Nike t-shirts?")
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	long, err := internal.CountTokens("How many white Nike t-shirts do we have left in XS size across every store?")
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if short <= 0 || long <= short {
		t.Errorf("Unexpected token counts: short=%d long=%d", short, long)
	}
}
