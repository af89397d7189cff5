package models

import "time"

// Estado values for a Participacion. A participation starts active and is only
// moved to disqualified by an admin; it is never deleted during a campaign.
const (
	EstadoActivo        = "active"
	EstadoDescalificado = "disqualified"
)

// Participacion is one contest entry backed by a validated sales receipt.
// NumeroBoleta carries a unique index: the insert fails closed on duplicates
// and the handler maps the constraint violation to a duplicate rejection.
type Participacion struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Nombres   string `gorm:"size:255;not null"`
	Apellidos string `gorm:"size:255;not null"`
	Rut       string `gorm:"size:32;not null"`
	Email     string `gorm:"size:255;not null"`
	Telefono  string `gorm:"size:64"`
	Direccion string `gorm:"size:512"`

	NumeroBoleta  string    `gorm:"size:32;not null;uniqueIndex"`
	Monto         int64     `gorm:"not null"`
	FechaEmision  time.Time `gorm:"not null"`
	TipoDocumento string    `gorm:"size:32"`
	TipoSucursal  string    `gorm:"size:64"`
	Sucursal      string    `gorm:"size:255"`

	ImagenPath   string  `gorm:"size:512"`
	TextoOCR     string  `gorm:"type:text"`
	ConfianzaOCR float64 `gorm:"default:0"`
	BoletaValida bool    `gorm:"default:false"`

	Estado      string     `gorm:"size:32;default:active;index"`
	EsGanador   *bool      `gorm:"index"`
	Premio      string     `gorm:"size:255"`
	FechaSorteo *time.Time
}
