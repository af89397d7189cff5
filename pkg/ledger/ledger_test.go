package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

var campaignStart = time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)

type fakeQuerier struct {
	calls     []uint
	lastSince time.Time
	// per-branch behavior keyed by branch ID
	errs map[uint]error
	docs map[uint]*Document
}

func (f *fakeQuerier) FindDocument(_ context.Context, b Branch, folio string, since time.Time) (*Document, error) {
	f.calls = append(f.calls, b.ID)
	f.lastSince = since
	if err, ok := f.errs[b.ID]; ok {
		return nil, err
	}
	if doc, ok := f.docs[b.ID]; ok {
		return doc, nil
	}
	return nil, nil
}

func testBranches(n int) []Branch {
	out := make([]Branch, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Branch{ID: uint(i), Name: "sucursal", Type: TipoSupermercado})
	}
	return out
}

func testLocator(q Querier) *Locator {
	return New(q, Config{
		MinimumAmount: 5000,
		CampaignStart: campaignStart,
		ScanRate:      rate.Inf,
	})
}

func TestLocateStopsAtFirstMatch(t *testing.T) {
	doc := &Document{Folio: "887654", Amount: 12000, IssueDate: campaignStart.AddDate(0, 0, 7), DocType: DocBoleta}
	fq := &fakeQuerier{
		errs: map[uint]error{1: errors.New("dial timeout"), 2: errors.New("dial timeout")},
		docs: map[uint]*Document{3: doc},
	}
	l := testLocator(fq)
	m := l.Locate(context.Background(), testBranches(5), "887654", "")
	if !m.Exists || m.BranchID != 3 {
		t.Fatalf("expected match at branch 3, got %+v", m)
	}
	if len(fq.calls) != 3 {
		t.Fatalf("branches after the match must not be attempted, calls=%v", fq.calls)
	}
	if !m.MeetsMinimumAmount || !m.MeetsMinimumDate {
		t.Fatalf("12000 on day 7 of the campaign should be eligible: %+v", m)
	}
}

func TestLocateNoMatch(t *testing.T) {
	fq := &fakeQuerier{}
	l := testLocator(fq)
	m := l.Locate(context.Background(), testBranches(3), "111222", "")
	if m.Exists || m.MeetsMinimumAmount || m.MeetsMinimumDate {
		t.Fatalf("expected empty match, got %+v", m)
	}
	if len(fq.calls) != 3 {
		t.Fatalf("all branches should be scanned on a miss, calls=%v", fq.calls)
	}
}

func TestLocateSkipsUnknownType(t *testing.T) {
	branches := testBranches(2)
	branches[0].Type = "Bodega"
	fq := &fakeQuerier{docs: map[uint]*Document{2: {Folio: "5", Amount: 9000, IssueDate: campaignStart}}}
	l := testLocator(fq)
	m := l.Locate(context.Background(), branches, "5", "")
	if !m.Exists || m.BranchID != 2 {
		t.Fatalf("unknown branch type must be skipped silently, got %+v", m)
	}
	if len(fq.calls) != 1 || fq.calls[0] != 2 {
		t.Fatalf("branch 1 should never be queried, calls=%v", fq.calls)
	}
}

func TestLocateTypeFilter(t *testing.T) {
	branches := testBranches(2)
	branches[1].Type = TipoFerreteria
	fq := &fakeQuerier{docs: map[uint]*Document{
		1: {Folio: "9", Amount: 8000, IssueDate: campaignStart},
		2: {Folio: "9", Amount: 8000, IssueDate: campaignStart},
	}}
	l := testLocator(fq)
	m := l.Locate(context.Background(), branches, "9", TipoFerreteria)
	if !m.Exists || m.BranchID != 2 {
		t.Fatalf("type filter should route to the ferreteria branch, got %+v", m)
	}
}

func TestLocateThresholdBoundaries(t *testing.T) {
	cases := []struct {
		amount     int64
		date       time.Time
		wantAmount bool
		wantDate   bool
	}{
		{4999, campaignStart, false, true},
		{5000, campaignStart, true, true},
		{12000, campaignStart.AddDate(0, 0, -1), true, false}, // 2025-10-07
		{12000, campaignStart, true, true},                    // boundary inclusive
	}
	for _, c := range cases {
		fq := &fakeQuerier{docs: map[uint]*Document{1: {Folio: "7", Amount: c.amount, IssueDate: c.date}}}
		l := testLocator(fq)
		m := l.Locate(context.Background(), testBranches(1), "7", "")
		if m.MeetsMinimumAmount != c.wantAmount || m.MeetsMinimumDate != c.wantDate {
			t.Fatalf("amount=%d date=%s: got %+v", c.amount, c.date, m)
		}
	}
}

func TestLocateQueryBoundPredatesCampaign(t *testing.T) {
	fq := &fakeQuerier{}
	l := testLocator(fq)
	l.Locate(context.Background(), testBranches(1), "7", "")
	if !fq.lastSince.Before(campaignStart) {
		t.Fatalf("query bound %s must predate the campaign start so old receipts get the date rejection", fq.lastSince)
	}
}

func TestLocateBreakerSkipsDeadBranch(t *testing.T) {
	fq := &fakeQuerier{errs: map[uint]error{1: errors.New("connection refused")}}
	l := New(fq, Config{
		MinimumAmount:  5000,
		CampaignStart:  campaignStart,
		ScanRate:       rate.Inf,
		BreakThreshold: 2,
		BreakCooldown:  time.Hour,
	})
	branches := testBranches(1)
	for i := 0; i < 2; i++ {
		l.Locate(context.Background(), branches, "1", "")
	}
	// circuit is open now; a third scan must not touch the branch.
	l.Locate(context.Background(), branches, "1", "")
	if len(fq.calls) != 2 {
		t.Fatalf("expected breaker to skip the dead branch, calls=%v", fq.calls)
	}
}

func TestBreakerRecovery(t *testing.T) {
	b := &breaker{threshold: 1, cooldown: 10 * time.Millisecond}
	now := time.Now()
	b.fail(now)
	if b.allow(now) {
		t.Fatal("breaker should be open right after threshold failures")
	}
	if !b.allow(now.Add(20 * time.Millisecond)) {
		t.Fatal("breaker should close after the cooldown")
	}
	b.ok()
	if !b.allow(now) {
		t.Fatal("success must reset the breaker")
	}
}

func TestDocTypeLabel(t *testing.T) {
	for raw, want := range map[string]string{
		"boleta":   DocBoleta,
		"FACTURA":  DocFactura,
		"cigarros": DocVentaCigarros,
		"nota":     DocOtro,
	} {
		if got := docTypeLabel(raw); got != want {
			t.Fatalf("docTypeLabel(%q) = %q, want %q", raw, got, want)
		}
	}
}
