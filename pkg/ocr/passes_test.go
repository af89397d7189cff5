package ocr

import "testing"

func TestAggregateAverageOverSuccessesOnly(t *testing.T) {
	results := []*Attempt{
		{Mode: "SINGLE_LINE", Text: "N° 123456", Confidence: 80},
		nil, // failed pass contributes nothing
		{Mode: "AUTO", Text: "BOLETA 123456", Confidence: 40},
		nil,
	}
	out := aggregate(results)
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(out.Attempts))
	}
	if out.AverageConfidence != 60 {
		t.Fatalf("average must ignore failed passes, got %.1f", out.AverageConfidence)
	}
	if out.BestText != "N° 123456" {
		t.Fatalf("best text should follow max confidence, got %q", out.BestText)
	}
	if out.ConcatenatedText != "N° 123456\nBOLETA 123456" {
		t.Fatalf("unexpected concatenation %q", out.ConcatenatedText)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	out := aggregate([]*Attempt{nil, nil, nil, nil})
	if out.AverageConfidence != 0 || out.ConcatenatedText != "" || len(out.Attempts) != 0 {
		t.Fatalf("all-failed run must yield empty outcome, got %+v", out)
	}
}
