package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFolioLabelled(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"n-degree", "BEACH MARKET SPA\nN° 123456\nTOTAL $12.000", "123456"},
		{"n-degree-noise", "xx yy N° 123456 GRACIAS POR SU COMPRA 99", "123456"},
		{"no-dot", "No. 887654 SUPERMERCADO", "887654"},
		{"boleta", "BOLETA ELECTRONICA 445566", "445566"},
		{"folio", "FOLIO: 70012345", "70012345"},
		{"numero", "NUMERO 55667", "55667"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ExtractFolio(c.text)
			assert.True(t, ok, "expected a folio in %q", c.text)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestExtractFolioDigitRunLadder(t *testing.T) {
	// 7+ digit run beats shorter runs.
	got, ok := ExtractFolio("ruido 123 8876541 x 445566")
	if !ok || got != "8876541" {
		t.Fatalf("expected 8876541 got %q ok=%v", got, ok)
	}
	// exactly six digits next.
	got, ok = ExtractFolio("abc 445566 def 12")
	if !ok || got != "445566" {
		t.Fatalf("expected 445566 got %q ok=%v", got, ok)
	}
}

func TestExtractFolioLongestRunFallback(t *testing.T) {
	// No label anywhere, single short run: last-resort pattern picks it, which
	// is also the longest run of length >= 4.
	got, ok := ExtractFolio("xx 123 4567 yy")
	if !ok || got != "4567" {
		t.Fatalf("expected 4567 got %q ok=%v", got, ok)
	}
}

func TestExtractFolioNotFound(t *testing.T) {
	if got, ok := ExtractFolio("sin numeros utiles 123"); ok {
		t.Fatalf("expected no folio, got %q", got)
	}
	if got, ok := ExtractFolio(""); ok {
		t.Fatalf("expected no folio on empty text, got %q", got)
	}
}

func TestExtractFolioDigitsOnly(t *testing.T) {
	got, ok := ExtractFolio("N°\n 9912345 ")
	assert.True(t, ok)
	assert.Regexp(t, `^\d+$`, got)
}
