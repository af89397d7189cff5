package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/beachmarket/concurso-api/pkg/ocr"
)

// pipelineResult bundles what the OCR pipeline learned about one receipt
// photo. Normalized is kept in memory and only persisted to disk once a
// ledger match confirms the receipt.
type pipelineResult struct {
	Folio      string
	Detected   bool
	Outcome    ocr.Outcome
	Normalized *image.NRGBA
}

// runReceiptPipeline normalizes the uploaded photo, runs the recognition
// passes over a temporary lossless copy and extracts a folio candidate.
func runReceiptPipeline(path string, crop *ocr.CropRegion, lang string) (*pipelineResult, error) {
	img, err := ocr.NormalizeImage(path, crop)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "boleta-norm-*.png")
	if err != nil {
		return nil, fmt.Errorf("image processing failed: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)
	if err := ocr.SaveNormalized(img, tmpPath); err != nil {
		return nil, err
	}
	outcome := ocr.RecognizeAll(tmpPath, lang)
	folio, ok := ocr.ExtractFolio(outcome.ConcatenatedText)
	return &pipelineResult{Folio: folio, Detected: ok, Outcome: outcome, Normalized: img}, nil
}

// saveReceiptImage persists the normalized image under the campaign directory
// as boleta_<numero>_<epochMillis>.jpg. It returns the relative store path
// kept on the record and the on-disk path for cleanup.
func saveReceiptImage(img image.Image, numero string) (string, string, error) {
	dir := filepath.Join(cfg.UploadBase, cfg.CampaignDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}
	name := fmt.Sprintf("boleta_%s_%d.jpg", numero, time.Now().UnixMilli())
	diskPath := filepath.Join(dir, name)
	if err := ocr.SaveNormalized(img, diskPath); err != nil {
		return "", "", err
	}
	return filepath.ToSlash(filepath.Join(cfg.CampaignDir, name)), diskPath, nil
}
