package models

import "time"

// RechazoLog is an append-only audit record of a rejected registration
// attempt. Rows are never updated or deleted.
type RechazoLog struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	NumeroBoleta string `gorm:"size:32;index"`
	Email        string `gorm:"size:255"`
	Motivo       string `gorm:"size:512;not null"`
}
