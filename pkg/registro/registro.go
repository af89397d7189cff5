// Package registro persists contest participations and enforces the
// business rules around them: one entry per receipt, minimum amount and
// campaign date window, rejection audit trail.
package registro

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/beachmarket/concurso-api/models"
	"github.com/beachmarket/concurso-api/pkg/ledger"
)

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrNoEncontrado marks lookups of a participation id that does not exist.
var ErrNoEncontrado = errors.New("participante no encontrado")

// Input carries the participant's form fields.
type Input struct {
	NumeroBoleta string
	Nombres      string
	Apellidos    string
	Rut          string
	Email        string
	Telefono     string
	Direccion    string
}

// RechazoError is a business-rule rejection with a user-facing message.
// Rejections are logged to the audit table; they are never retried.
type RechazoError struct {
	Motivo string
}

func (e *RechazoError) Error() string { return e.Motivo }

// EsRechazo reports whether err is a business-rule rejection (HTTP 400)
// rather than an internal failure (HTTP 500).
func EsRechazo(err error) (*RechazoError, bool) {
	var re *RechazoError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ValidateInput checks required personal fields and the email shape. Returns
// a user-facing message, or "" when the input is acceptable.
func ValidateInput(in Input) string {
	required := []string{in.NumeroBoleta, in.Nombres, in.Apellidos, in.Rut, in.Email, in.Telefono, in.Direccion}
	for _, f := range required {
		if strings.TrimSpace(f) == "" {
			return "Todos los campos son obligatorios"
		}
	}
	if !emailRE.MatchString(strings.TrimSpace(in.Email)) {
		return "El email ingresado no es válido"
	}
	return ""
}

// Servicio wraps the participation store.
type Servicio struct {
	DB            *gorm.DB
	MinimumAmount int64
	CampaignStart time.Time
}

// Registrar applies the precondition chain (duplicate receipt, ledger
// existence, minimum amount, minimum date) and on success calls guardarImagen
// to persist the normalized photo before inserting the row. guardarImagen
// returns the store path kept on the record plus the on-disk path.
// The receipt-number unique index makes the insert fail closed: a constraint
// violation from a concurrent registration maps to the duplicate rejection
// and the just-saved image is removed again.
func (s *Servicio) Registrar(in Input, match ledger.Match, guardarImagen func(numero string) (storePath, diskPath string, err error), textoOCR string, confianza float64) (*models.Participacion, error) {
	numero := strings.TrimSpace(in.NumeroBoleta)

	var existing models.Participacion
	err := s.DB.Where("numero_boleta = ? AND estado = ?", numero, models.EstadoActivo).First(&existing).Error
	if err == nil {
		return nil, s.rechazar(numero, in.Email, fmt.Sprintf("La boleta N° %s ya fue registrada en el concurso", numero))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	if !match.Exists {
		return nil, s.rechazar(numero, in.Email, fmt.Sprintf("No se encontró la boleta N° %s en nuestros registros de venta", numero))
	}
	if !match.MeetsMinimumAmount {
		return nil, s.rechazar(numero, in.Email, fmt.Sprintf("El monto de la boleta ($%d) es menor al mínimo de $%d para participar", match.Amount, s.MinimumAmount))
	}
	if !match.MeetsMinimumDate {
		return nil, s.rechazar(numero, in.Email, fmt.Sprintf("La boleta debe haber sido emitida a partir del %s", s.CampaignStart.Format("02-01-2006")))
	}

	imagenPath := ""
	imagenDisco := ""
	if guardarImagen != nil {
		imagenPath, imagenDisco, err = guardarImagen(numero)
		if err != nil {
			return nil, fmt.Errorf("persist image: %w", err)
		}
	}

	p := models.Participacion{
		Nombres:       strings.TrimSpace(in.Nombres),
		Apellidos:     strings.TrimSpace(in.Apellidos),
		Rut:           strings.TrimSpace(in.Rut),
		Email:         strings.TrimSpace(in.Email),
		Telefono:      strings.TrimSpace(in.Telefono),
		Direccion:     strings.TrimSpace(in.Direccion),
		NumeroBoleta:  numero,
		Monto:         match.Amount,
		FechaEmision:  match.IssueDate,
		TipoDocumento: match.DocType,
		TipoSucursal:  match.BranchType,
		Sucursal:      match.BranchName,
		ImagenPath:    imagenPath,
		TextoOCR:      textoOCR,
		ConfianzaOCR:  confianza,
		BoletaValida:  true,
		Estado:        models.EstadoActivo,
	}
	if err := s.DB.Create(&p).Error; err != nil {
		if isUniqueConstraintError(err) {
			// lost the race after the friendly pre-check; the image saved
			// above belongs to nobody now
			if imagenDisco != "" {
				if rmErr := os.Remove(imagenDisco); rmErr != nil {
					log.Printf("registro: orphan image cleanup failed for %s: %v", numero, rmErr)
				}
			}
			return nil, s.rechazar(numero, in.Email, fmt.Sprintf("La boleta N° %s ya fue registrada en el concurso", numero))
		}
		return nil, fmt.Errorf("insert participation: %w", err)
	}
	return &p, nil
}

// rechazar writes the audit row and wraps the motive. Audit failures are
// logged, not surfaced: the caller still gets the rejection.
func (s *Servicio) rechazar(numero, email, motivo string) error {
	entry := models.RechazoLog{NumeroBoleta: numero, Email: email, Motivo: motivo}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Printf("registro: rechazo log insert failed for %s: %v", numero, err)
	}
	return &RechazoError{Motivo: motivo}
}

// Verificar reports whether a receipt number is already registered and when.
func (s *Servicio) Verificar(numero string) (bool, *time.Time, error) {
	var p models.Participacion
	err := s.DB.Where("numero_boleta = ?", strings.TrimSpace(numero)).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	created := p.CreatedAt
	return true, &created, nil
}

// Listar returns every participation, newest first.
func (s *Servicio) Listar() ([]models.Participacion, error) {
	var out []models.Participacion
	if err := s.DB.Order("created_at desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CandidatosSorteo lists eligible draw entries: active, valid receipt, not
// yet a winner, ordered by submission time.
func (s *Servicio) CandidatosSorteo() ([]models.Participacion, error) {
	var out []models.Participacion
	err := s.DB.
		Where("estado = ? AND boleta_valida = ? AND (es_ganador IS NULL OR es_ganador = ?)", models.EstadoActivo, true, false).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarcarGanador records the draw result for one participant. A participation
// that is not active (or holds an invalid receipt) cannot win.
func (s *Servicio) MarcarGanador(id uint, premio string) (*models.Participacion, error) {
	var p models.Participacion
	if err := s.DB.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEncontrado
		}
		return nil, err
	}
	if p.Estado != models.EstadoActivo || !p.BoletaValida {
		return nil, &RechazoError{Motivo: "El participante no está habilitado para el sorteo"}
	}
	ganador := true
	now := time.Now()
	p.EsGanador = &ganador
	p.Premio = premio
	p.FechaSorteo = &now
	if err := s.DB.Save(&p).Error; err != nil {
		return nil, fmt.Errorf("mark winner: %w", err)
	}
	return &p, nil
}

// isUniqueConstraintError matches duplicate-key failures without depending on
// driver error types. Case-insensitive: Postgres reports "unique constraint",
// sqlite reports "UNIQUE constraint failed".
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
