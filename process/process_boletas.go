package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/beachmarket/concurso-api/models"
	"github.com/beachmarket/concurso-api/pkg/ledger"
	"github.com/beachmarket/concurso-api/pkg/ocr"
)

// Stored campaign images follow boleta_<numero>_<epochMillis>.<ext>.
var boletaFileRE = regexp.MustCompile(`^boleta_(\d+)_\d+\.(?:jpg|jpeg|png)$`)

var db *gorm.DB

// global flags (parsed in main)
var (
	verbose bool
	force   bool
)

// preloadState caches participations by receipt number so workers avoid
// per-file queries.
type preloadState struct {
	byNumero map[string]*models.Participacion
	mu       sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{byNumero: make(map[string]*models.Participacion, 1024)}
}

func (ps *preloadState) get(numero string) (*models.Participacion, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.byNumero[numero]
	return p, ok
}

func mustInitDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

// Main: re-runs the OCR pipeline over stored campaign images, refreshing the
// recognized text/confidence on each participation and flagging records whose
// extracted folio no longer matches. Optional watch mode picks up new files.
func main() {
	dirFlag := flag.String("dir", filepath.Join("uploads", "concurso"), "directory of stored receipt images")
	dryRun := flag.Bool("dry-run", false, "Skip all DB writes; just list / OCR and print outcomes")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	validate := flag.Bool("validate", false, "Also re-check each folio against the branch ledgers")
	lang := flag.String("lang", "spa", "Tesseract language")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-file logging")
	flag.BoolVar(&force, "force", false, "Re-OCR files whose participation already has text")
	flag.Parse()

	if *dryRun {
		log.Printf("Dry-run: scanning %s (no DB interaction)", *dirFlag)
		files := listImageFiles(*dirFlag)
		log.Printf("Found %d candidate files", len(files))
		for _, f := range files {
			folio, detected, _, conf := runOCR(filepath.Join(*dirFlag, f), *lang)
			fmt.Printf("%s folio=%s detected=%v conf=%.1f\n", f, folio, detected, conf)
		}
		return
	}

	db = mustInitDBFromEnv()
	ps := preloadAll()
	log.Printf("Preloaded: participaciones=%d", len(ps.byNumero))

	var loc *ledger.Locator
	var branches []ledger.Branch
	if *validate {
		loc, branches = buildLocator()
		log.Printf("Ledger validation enabled across %d branches", len(branches))
	}

	files := listImageFiles(*dirFlag)
	log.Printf("Scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	runWorkerPool(*dirFlag, *lang, ps, loc, branches, files, effectiveWorkers(*workers))

	if *watch {
		if err := watchDirectory(*dirFlag, *lang, ps, loc, branches, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// preloadAll fetches every participation keyed by receipt number.
func preloadAll() *preloadState {
	ps := newPreloadState()
	var rows []models.Participacion
	if err := db.Find(&rows).Error; err == nil {
		for i := range rows {
			p := rows[i]
			ps.byNumero[p.NumeroBoleta] = &p
		}
	}
	return ps
}

// buildLocator wires the branch scan from the sucursales table, honoring the
// same MIN_AMOUNT / CAMPAIGN_START env overrides the server uses.
func buildLocator() (*ledger.Locator, []ledger.Branch) {
	minAmount := int64(5000)
	if v := os.Getenv("MIN_AMOUNT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			minAmount = n
		}
	}
	start, err := time.Parse("2006-01-02", "2025-10-08")
	if v := os.Getenv("CAMPAIGN_START"); v != "" {
		start, err = time.Parse("2006-01-02", v)
	}
	if err != nil {
		log.Fatalf("invalid CAMPAIGN_START: %v", err)
	}
	loc := ledger.New(ledger.PgxQuerier{}, ledger.Config{
		MinimumAmount: minAmount,
		CampaignStart: start,
		ScanRate:      rate.Limit(2),
	})
	var rows []models.Sucursal
	if err := db.Where("activa = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		log.Fatalf("load sucursales: %v", err)
	}
	branches := make([]ledger.Branch, 0, len(rows))
	for _, s := range rows {
		branches = append(branches, ledger.Branch{
			ID: s.ID, Name: s.Nombre, Type: s.Tipo,
			Host: s.Host, Port: s.Puerto, Database: s.BaseDatos,
			User: s.Usuario, Password: s.Contrasena,
		})
	}
	return loc, branches
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !boletaFileRE.MatchString(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func watchDirectory(dir, lang string, ps *preloadState, loc *ledger.Locator, branches []ledger.Branch, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		// simple debounce map of pending files
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !boletaFileRE.MatchString(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	// Use worker pool for watch events too
	go runWorkerPool(dir, lang, ps, loc, branches, nil, workers, fileCh)
	// block forever (Ctrl+C to exit)
	select {}
}

// worker pool orchestrator
func runWorkerPool(dir, lang string, ps *preloadState, loc *ledger.Locator, branches []ledger.Branch, initial []string, workers int, extraCh ...<-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				processSingleFile(dir, name, lang, ps, loc, branches)
			}
		}()
	}
	// feed initial
	go func() {
		for _, f := range initial {
			fileCh <- f
		}
		// also relay from extra channels if provided
		for _, ch := range extraCh {
			go func(c <-chan string) {
				for n := range c {
					fileCh <- n
				}
			}(ch)
		}
		// if no extraCh (scan only) close when done
		if len(extraCh) == 0 {
			close(fileCh)
		}
	}()
	if len(extraCh) == 0 {
		wg.Wait()
	}
}

// processSingleFile re-OCRs one stored image and refreshes its participation.
func processSingleFile(dir, name, lang string, ps *preloadState, loc *ledger.Locator, branches []ledger.Branch) {
	m := boletaFileRE.FindStringSubmatch(name)
	if m == nil {
		return
	}
	numero := m[1]
	p, ok := ps.get(numero)
	if !ok {
		logV("SKIP no participation for %s", name)
		return
	}
	if p.TextoOCR != "" && !force {
		logV("SKIP already has OCR text %s", name)
		return
	}

	folio, detected, texto, conf := runOCR(filepath.Join(dir, name), lang)
	updates := map[string]any{
		"texto_ocr":     texto,
		"confianza_ocr": conf,
	}
	if detected && folio != numero {
		// The stored photo no longer supports the registered number; flag it
		// for manual review instead of silently accepting the row.
		updates["boleta_valida"] = false
		log.Printf("MISMATCH %s registered=%s extracted=%s", name, numero, folio)
	}

	if loc != nil {
		match := loc.Locate(context.Background(), branches, numero, "")
		if !match.Exists || !match.MeetsMinimumAmount || !match.MeetsMinimumDate {
			updates["boleta_valida"] = false
			log.Printf("LEDGER invalid %s exists=%v monto_ok=%v fecha_ok=%v",
				numero, match.Exists, match.MeetsMinimumAmount, match.MeetsMinimumDate)
		}
	}

	if err := db.Model(&models.Participacion{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		log.Printf("ERROR update participation %s: %v", numero, err)
		return
	}
	log.Printf("OCR %s folio=%s detected=%v conf=%.1f", name, folio, detected, conf)
}

// runOCR normalizes the image, runs the recognition passes and extracts the
// folio. Returns empty values when nothing usable came out.
func runOCR(path, lang string) (folio string, detected bool, texto string, conf float64) {
	img, err := ocr.NormalizeImage(path, nil)
	if err != nil {
		logV("normalize fail %s: %v", path, err)
		return "", false, "", 0
	}
	tmp, err := os.CreateTemp("", "boleta-norm-*.png")
	if err != nil {
		return "", false, "", 0
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)
	if err := ocr.SaveNormalized(img, tmpPath); err != nil {
		logV("save normalized fail %s: %v", path, err)
		return "", false, "", 0
	}
	outcome := ocr.RecognizeAll(tmpPath, lang)
	folio, detected = ocr.ExtractFolio(outcome.ConcatenatedText)
	return folio, detected, outcome.ConcatenatedText, outcome.AverageConfidence
}
