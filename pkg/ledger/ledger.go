// Package ledger locates sales documents across per-branch databases. Each
// retail branch runs its own database instance; a folio lookup walks the
// configured branches in order and stops at the first hit.
package ledger

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Branch types recognized by the locator. Anything else is skipped silently.
const (
	TipoSupermercado    = "Supermercado"
	TipoSupermerreteria = "Supermerreteria"
	TipoFerreteria      = "Ferreteria"
	TipoMultitienda     = "Multitienda"
)

// Document type labels surfaced to callers.
const (
	DocBoleta        = "Boleta"
	DocFactura       = "Factura"
	DocVentaCigarros = "VentaCigarros"
	DocOtro          = "Otro"
)

// Branch describes one retail location's database.
type Branch struct {
	ID       uint
	Name     string
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Document is a sales document header found in a branch database.
type Document struct {
	Folio     string
	Amount    int64
	IssueDate time.Time
	DocType   string
}

// Match is the outcome of one folio lookup across all branches. When no
// branch matched, Exists is false and the eligibility flags stay false.
type Match struct {
	Exists             bool
	Folio              string
	Amount             int64
	IssueDate          time.Time
	DocType            string
	BranchID           uint
	BranchName         string
	BranchType         string
	MeetsMinimumAmount bool
	MeetsMinimumDate   bool
}

// Querier runs the branch-type-specific folio query against a single branch.
// A (nil, nil) return means the branch was reachable but holds no match.
type Querier interface {
	FindDocument(ctx context.Context, b Branch, folio string, since time.Time) (*Document, error)
}

// Config carries the campaign thresholds and scan pacing.
type Config struct {
	MinimumAmount int64
	CampaignStart time.Time
	// ScanRate paces branch lookups so remote stores are not hammered.
	ScanRate rate.Limit
	// BranchTimeout bounds connect+query per branch.
	BranchTimeout time.Duration
	// ScanLookback widens the query's date bound below CampaignStart so a
	// pre-campaign receipt is still found and rejected for its date instead
	// of surfacing as "not found".
	ScanLookback time.Duration
	// BreakThreshold consecutive failures open a branch's circuit for
	// BreakCooldown; the scan then skips it instead of waiting on a dead host.
	BreakThreshold int
	BreakCooldown  time.Duration
}

// Locator scans branch databases for a folio.
type Locator struct {
	querier Querier
	cfg     Config
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[uint]*breaker
}

func New(q Querier, cfg Config) *Locator {
	if cfg.ScanRate <= 0 {
		cfg.ScanRate = 2
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = 5 * time.Second
	}
	if cfg.BreakThreshold <= 0 {
		cfg.BreakThreshold = 3
	}
	if cfg.BreakCooldown <= 0 {
		cfg.BreakCooldown = time.Minute
	}
	if cfg.ScanLookback <= 0 {
		cfg.ScanLookback = 90 * 24 * time.Hour
	}
	return &Locator{
		querier:  q,
		cfg:      cfg,
		limiter:  rate.NewLimiter(cfg.ScanRate, 1),
		breakers: make(map[uint]*breaker),
	}
}

// Locate walks branches in listed order and returns the first match. An
// unreachable branch counts as "no match there": the error is logged, the
// breaker notes it and the scan continues with the next branch. No retries.
func (l *Locator) Locate(ctx context.Context, branches []Branch, folio, typeFilter string) Match {
	for _, b := range branches {
		if typeFilter != "" && b.Type != typeFilter {
			continue
		}
		if !knownType(b.Type) {
			continue
		}
		br := l.breakerFor(b.ID)
		if !br.allow(time.Now()) {
			log.Printf("ledger: circuit open for branch %s (%d), skipping", b.Name, b.ID)
			continue
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return Match{Folio: folio}
		}
		qctx, cancel := context.WithTimeout(ctx, l.cfg.BranchTimeout)
		doc, err := l.querier.FindDocument(qctx, b, folio, l.cfg.CampaignStart.Add(-l.cfg.ScanLookback))
		cancel()
		if err != nil {
			br.fail(time.Now())
			log.Printf("ledger: lookup failed at branch %s (%d): %v", b.Name, b.ID, err)
			continue
		}
		br.ok()
		if doc == nil {
			continue
		}
		return Match{
			Exists:             true,
			Folio:              doc.Folio,
			Amount:             doc.Amount,
			IssueDate:          doc.IssueDate,
			DocType:            doc.DocType,
			BranchID:           b.ID,
			BranchName:         b.Name,
			BranchType:         b.Type,
			MeetsMinimumAmount: doc.Amount >= l.cfg.MinimumAmount,
			MeetsMinimumDate:   !doc.IssueDate.Before(l.cfg.CampaignStart),
		}
	}
	return Match{Folio: folio}
}

func (l *Locator) breakerFor(id uint) *breaker {
	l.mu.Lock()
	defer l.mu.Unlock()
	br, ok := l.breakers[id]
	if !ok {
		br = &breaker{threshold: l.cfg.BreakThreshold, cooldown: l.cfg.BreakCooldown}
		l.breakers[id] = br
	}
	return br
}

func knownType(t string) bool {
	switch t {
	case TipoSupermercado, TipoSupermerreteria, TipoFerreteria, TipoMultitienda:
		return true
	}
	return false
}
