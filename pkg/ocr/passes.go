package ocr

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// folioWhitelist restricts the focused passes to digits, the letters that show
// up in "N°"/"BOLETA"/"FOLIO" labels and common receipt punctuation.
const folioWhitelist = "0123456789NnoOBbLlEeTtAaFfIiUuMmRr°º.,:#-/ "

// passConfig pairs a page segmentation mode with an optional whitelist.
type passConfig struct {
	label     string
	psm       gosseract.PageSegMode
	whitelist string
}

var recognitionPasses = []passConfig{
	{"SINGLE_LINE", gosseract.PSM_SINGLE_LINE, folioWhitelist},
	{"SINGLE_BLOCK", gosseract.PSM_SINGLE_BLOCK, folioWhitelist},
	{"AUTO", gosseract.PSM_AUTO, ""},
	{"SPARSE_TEXT", gosseract.PSM_SPARSE_TEXT, ""},
}

// Attempt is one finished recognition pass. Attempts are immutable once
// produced.
type Attempt struct {
	Mode       string
	Text       string
	Confidence float64 // 0..100
}

// Outcome aggregates all succeeded passes over one image.
type Outcome struct {
	Attempts          []Attempt
	ConcatenatedText  string
	AverageConfidence float64
	BestText          string
}

// RecognizeAll runs the four recognition passes concurrently and joins the
// results. A failed pass contributes no attempt and is logged, not retried;
// when every pass fails the outcome is empty text with zero confidence, which
// callers treat as "undetected" rather than an error.
func RecognizeAll(path, lang string) Outcome {
	results := make([]*Attempt, len(recognitionPasses))
	var wg sync.WaitGroup
	for i, cfg := range recognitionPasses {
		wg.Add(1)
		go func(i int, cfg passConfig) {
			defer wg.Done()
			att, err := runPass(path, lang, cfg)
			if err != nil {
				log.Printf("OCR pass %s failed on %s: %v", cfg.label, path, err)
				return
			}
			results[i] = att
		}(i, cfg)
	}
	wg.Wait()
	out := aggregate(results)
	log.Printf("OCR passes done attempts=%d avgConf=%.1f snippet=%q", len(out.Attempts), out.AverageConfidence, snippet(out.ConcatenatedText, 120))
	return out
}

// aggregate folds pass results into an Outcome. The average is taken over
// succeeded passes only so failures never drag the confidence down.
func aggregate(results []*Attempt) Outcome {
	var out Outcome
	var texts []string
	var sum float64
	best := -1.0
	for _, att := range results {
		if att == nil {
			continue
		}
		out.Attempts = append(out.Attempts, *att)
		texts = append(texts, att.Text)
		sum += att.Confidence
		if att.Confidence > best {
			best = att.Confidence
			out.BestText = att.Text
		}
	}
	out.ConcatenatedText = strings.Join(texts, "\n")
	if n := len(out.Attempts); n > 0 {
		out.AverageConfidence = sum / float64(n)
	}
	return out
}

func runPass(path, lang string, cfg passConfig) (*Attempt, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(cfg.psm); err != nil {
		return nil, fmt.Errorf("set psm: %w", err)
	}
	if cfg.whitelist != "" {
		_ = client.SetWhitelist(cfg.whitelist)
	}
	if err := client.SetImage(path); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	return &Attempt{Mode: cfg.label, Text: text, Confidence: wordConfidence(client)}, nil
}

// wordConfidence averages per-word confidences from Tesseract's bounding
// boxes; 0 when boxes are unavailable (the text is still usable).
func wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var total float64
	for _, b := range boxes {
		total += b.Confidence
	}
	return total / float64(len(boxes))
}
