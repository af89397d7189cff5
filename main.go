package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/beachmarket/concurso-api/pkg/ledger"
	"github.com/beachmarket/concurso-api/pkg/registro"
)

var (
	cfg      Config
	servicio *registro.Servicio
	locator  *ledger.Locator
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	cfg = loadConfig()

	// Support a lightweight migrate command: `./concurso-api migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()

	servicio = &registro.Servicio{DB: db, MinimumAmount: cfg.MinimumAmount, CampaignStart: cfg.CampaignStart}
	locator = ledger.New(ledger.PgxQuerier{}, ledger.Config{
		MinimumAmount: cfg.MinimumAmount,
		CampaignStart: cfg.CampaignStart,
		ScanRate:      rate.Limit(cfg.ScanRate),
		BranchTimeout: cfg.BranchTimeout,
	})

	r := gin.Default()

	setupRoutes(r)

	r.Run(cfg.ListenAddr)
}
