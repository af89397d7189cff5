package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfusionVariantsIncludesOriginal(t *testing.T) {
	for _, folio := range []string{"123456", "888", "70555", "42"} {
		vs := ConfusionVariants(folio)
		if len(vs) == 0 || vs[0] != folio {
			t.Fatalf("original %q must come first, got %v", folio, vs)
		}
	}
}

func TestConfusionVariantsCapAndShape(t *testing.T) {
	// Every digit here has confusion entries, so the cap kicks in.
	vs := ConfusionVariants("580158")
	assert.LessOrEqual(t, len(vs), 5)
	seen := map[string]struct{}{}
	for _, v := range vs {
		assert.Len(t, v, len("580158"))
		assert.Regexp(t, `^\d+$`, v)
		_, dup := seen[v]
		assert.False(t, dup, "duplicate variant %q", v)
		seen[v] = struct{}{}
	}
}

func TestConfusionVariantsSubstitutions(t *testing.T) {
	// 1 -> 7 is the only entry for '1'; '2' has none.
	vs := ConfusionVariants("12")
	assert.Equal(t, []string{"12", "72"}, vs)
}

func TestConfusionVariantsNoTable(t *testing.T) {
	// Digits without confusion entries produce just the original.
	vs := ConfusionVariants("2494")
	if len(vs) != 1 || vs[0] != "2494" {
		t.Fatalf("expected only original, got %v", vs)
	}
}
