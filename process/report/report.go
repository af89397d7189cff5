package report

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/beachmarket/concurso-api/models"
)

func mustDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	return gdb
}

// RunReport prints a month-bounded campaign report (month in YYYY-MM):
// participation counts, amounts, winners and rejection totals, and optionally
// lists the matching rows.
func RunReport(month string, list bool) {
	gdb := mustDBFromEnv()

	t, err := time.Parse("2006-01", month)
	if err != nil {
		log.Fatalf("invalid month format, expected YYYY-MM: %v", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var total sql.NullInt64
	var cnt, winners int64
	if err := gdb.Raw(`SELECT COALESCE(SUM(monto),0) AS total, COUNT(*) AS cnt FROM participacions WHERE created_at >= ? AND created_at < ?`, start, end).Row().Scan(&total, &cnt); err != nil {
		log.Fatalf("query failed: %v", err)
	}
	if err := gdb.Model(&models.Participacion{}).
		Where("created_at >= ? AND created_at < ? AND es_ganador = ?", start, end, true).
		Count(&winners).Error; err != nil {
		log.Fatalf("winner count failed: %v", err)
	}
	var rechazos int64
	if err := gdb.Model(&models.RechazoLog{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&rechazos).Error; err != nil {
		log.Fatalf("rejection count failed: %v", err)
	}

	fmt.Printf("Campaign report month=%s (UTC):\n", month)
	fmt.Printf("  participaciones=%d monto_total=%d ganadores=%d rechazos=%d\n", cnt, total.Int64, winners, rechazos)

	if list {
		var rows []models.Participacion
		if err := gdb.Where("created_at >= ? AND created_at < ?", start, end).Order("id").Find(&rows).Error; err != nil {
			log.Fatalf("fetch rows failed: %v", err)
		}
		for _, r := range rows {
			fmt.Printf("%d|%s|%d|%s|%s|%s\n", r.ID, r.NumeroBoleta, r.Monto, r.Sucursal, r.Estado, r.CreatedAt.Format(time.RFC3339))
		}
	}
}
