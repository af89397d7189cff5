package models

import "time"

// Sucursal describes a retail branch with its own database instance. The
// contest pipeline only reads these rows; maintenance is an ops concern.
type Sucursal struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Nombre string `gorm:"size:255;not null"`
	// Tipo selects the query shape used against the branch database
	// (Supermercado, Supermerreteria, Ferreteria, Multitienda).
	Tipo       string `gorm:"size:64;not null;index"`
	Host       string `gorm:"size:255;not null"`
	Puerto     int    `gorm:"default:5432"`
	BaseDatos  string `gorm:"size:128;not null"`
	Usuario    string `gorm:"size:128"`
	Contrasena string `gorm:"size:128"`
	Activa     bool   `gorm:"default:true;index"`
}
