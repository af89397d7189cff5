package registro

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/beachmarket/concurso-api/models"
	"github.com/beachmarket/concurso-api/pkg/ledger"
)

var testCampaignStart = time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC)

func newTestServicio(t *testing.T) *Servicio {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registro.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Participacion{}, &models.RechazoLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &Servicio{DB: db, MinimumAmount: 5000, CampaignStart: testCampaignStart}
}

func eligibleMatch(folio string) ledger.Match {
	return ledger.Match{
		Exists:             true,
		Folio:              folio,
		Amount:             12000,
		IssueDate:          testCampaignStart.AddDate(0, 0, 7),
		DocType:            ledger.DocBoleta,
		BranchID:           1,
		BranchName:         "Sucursal Centro",
		BranchType:         ledger.TipoSupermercado,
		MeetsMinimumAmount: true,
		MeetsMinimumDate:   true,
	}
}

// guardarImagen stand-in that writes a real file so cleanup is observable.
func fakeGuardar(t *testing.T) (func(string) (string, string, error), *string) {
	t.Helper()
	dir := t.TempDir()
	var saved string
	fn := func(numero string) (string, string, error) {
		name := "boleta_" + numero + "_1.jpg"
		disk := filepath.Join(dir, name)
		if err := os.WriteFile(disk, []byte("jpg"), 0644); err != nil {
			return "", "", err
		}
		saved = disk
		return "concurso/" + name, disk, nil
	}
	return fn, &saved
}

func countRechazos(t *testing.T, s *Servicio, numero string) int64 {
	t.Helper()
	var n int64
	if err := s.DB.Model(&models.RechazoLog{}).Where("numero_boleta = ?", numero).Count(&n).Error; err != nil {
		t.Fatalf("count rechazos: %v", err)
	}
	return n
}

func TestRegistrarSuccess(t *testing.T) {
	s := newTestServicio(t)
	guardar, _ := fakeGuardar(t)

	p, err := s.Registrar(validInput(), eligibleMatch("887654"), guardar, "N° 887654", 72.5)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	assert.NotZero(t, p.ID)
	assert.Equal(t, "887654", p.NumeroBoleta)
	assert.Equal(t, int64(12000), p.Monto)
	assert.Equal(t, ledger.DocBoleta, p.TipoDocumento)
	assert.Equal(t, "Sucursal Centro", p.Sucursal)
	assert.Equal(t, models.EstadoActivo, p.Estado)
	assert.True(t, p.BoletaValida)
	assert.Equal(t, "concurso/boleta_887654_1.jpg", p.ImagenPath)
	assert.Equal(t, "N° 887654", p.TextoOCR)
	assert.Equal(t, 0, int(countRechazos(t, s, "887654")))
}

func TestRegistrarDuplicateRejected(t *testing.T) {
	s := newTestServicio(t)
	guardar, _ := fakeGuardar(t)

	first, err := s.Registrar(validInput(), eligibleMatch("887654"), guardar, "", 0)
	if err != nil {
		t.Fatalf("first registration must succeed: %v", err)
	}

	saveCalled := false
	_, err = s.Registrar(validInput(), eligibleMatch("887654"), func(string) (string, string, error) {
		saveCalled = true
		return "", "", nil
	}, "", 0)
	re, ok := EsRechazo(err)
	if !ok {
		t.Fatalf("expected a rejection, got %v", err)
	}
	assert.Contains(t, re.Motivo, "ya fue registrada")
	assert.False(t, saveCalled, "duplicate must be rejected before saving the image")
	assert.Equal(t, int64(1), countRechazos(t, s, "887654"))

	// the original row is untouched
	var rows []models.Participacion
	if err := s.DB.Find(&rows).Error; err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single participation, got %d", len(rows))
	}
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, first.Email, rows[0].Email)
	assert.Equal(t, models.EstadoActivo, rows[0].Estado)
}

func TestRegistrarNotFoundRejected(t *testing.T) {
	s := newTestServicio(t)

	_, err := s.Registrar(validInput(), ledger.Match{Folio: "887654"}, nil, "", 0)
	re, ok := EsRechazo(err)
	if !ok {
		t.Fatalf("expected a rejection, got %v", err)
	}
	assert.Contains(t, re.Motivo, "No se encontró la boleta N° 887654")
	assert.Equal(t, int64(1), countRechazos(t, s, "887654"))

	var n int64
	s.DB.Model(&models.Participacion{}).Count(&n)
	assert.Zero(t, n)
}

func TestRegistrarAmountBelowMinimum(t *testing.T) {
	s := newTestServicio(t)

	m := eligibleMatch("887654")
	m.Amount = 4999
	m.MeetsMinimumAmount = false
	_, err := s.Registrar(validInput(), m, nil, "", 0)
	re, ok := EsRechazo(err)
	if !ok {
		t.Fatalf("expected a rejection, got %v", err)
	}
	// message carries the actual amount and the threshold
	assert.Contains(t, re.Motivo, "$4999")
	assert.Contains(t, re.Motivo, "$5000")
	assert.Equal(t, int64(1), countRechazos(t, s, "887654"))
}

func TestRegistrarDateBoundary(t *testing.T) {
	s := newTestServicio(t)
	guardar, _ := fakeGuardar(t)

	// 2025-10-07 rejected citing the minimum-date rule
	m := eligibleMatch("700001")
	m.IssueDate = testCampaignStart.AddDate(0, 0, -1)
	m.MeetsMinimumDate = false
	_, err := s.Registrar(validInput(), m, nil, "", 0)
	re, ok := EsRechazo(err)
	if !ok {
		t.Fatalf("expected a rejection, got %v", err)
	}
	assert.Contains(t, re.Motivo, "08-10-2025")

	// 2025-10-08 accepted (boundary inclusive)
	in := validInput()
	in.NumeroBoleta = "700002"
	m2 := eligibleMatch("700002")
	m2.IssueDate = testCampaignStart
	if _, err := s.Registrar(in, m2, guardar, "", 0); err != nil {
		t.Fatalf("boundary date must be accepted: %v", err)
	}
}

func TestRegistrarUniqueIndexFailsClosed(t *testing.T) {
	s := newTestServicio(t)

	// a disqualified row slips past the active-only pre-check; the unique
	// index still rejects the insert
	seed := models.Participacion{
		Nombres: "Ana", Apellidos: "Rojas", Rut: "1-9", Email: "ana@example.com",
		NumeroBoleta: "887654", Monto: 9000, FechaEmision: testCampaignStart,
		Estado: models.EstadoDescalificado,
	}
	if err := s.DB.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	guardar, saved := fakeGuardar(t)
	_, err := s.Registrar(validInput(), eligibleMatch("887654"), guardar, "", 0)
	re, ok := EsRechazo(err)
	if !ok {
		t.Fatalf("expected the duplicate rejection, got %v", err)
	}
	assert.Contains(t, re.Motivo, "ya fue registrada")

	// the image written before the failed insert is cleaned up again
	if *saved == "" {
		t.Fatal("guardarImagen should have run before the insert")
	}
	if _, statErr := os.Stat(*saved); !os.IsNotExist(statErr) {
		t.Fatalf("orphaned image %s should have been removed", *saved)
	}

	var n int64
	s.DB.Model(&models.Participacion{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestRegistrarImageFailureIsInternal(t *testing.T) {
	s := newTestServicio(t)

	_, err := s.Registrar(validInput(), eligibleMatch("887654"), func(string) (string, string, error) {
		return "", "", os.ErrPermission
	}, "", 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := EsRechazo(err); ok {
		t.Fatalf("image persistence failure is internal, not a rejection: %v", err)
	}
	if !strings.Contains(err.Error(), "persist image") {
		t.Fatalf("unexpected error %v", err)
	}
	// internal failures are not audited as rejections
	assert.Zero(t, countRechazos(t, s, "887654"))
}
