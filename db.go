package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/beachmarket/concurso-api/models"
	"github.com/beachmarket/concurso-api/pkg/ledger"
)

var db *gorm.DB

func initDB() {
	var err error
	if cfg.DBDSN == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			log.Printf("migration warning (users): %v", err)
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			log.Printf("migration warning (refresh_tokens): %v", err)
		}
		if err := db.AutoMigrate(&models.Sucursal{}); err != nil {
			log.Printf("migration warning (sucursales): %v", err)
		}
		if err := db.AutoMigrate(&models.Participacion{}); err != nil {
			log.Printf("migration warning (participaciones): %v", err)
		}
		if err := db.AutoMigrate(&models.RechazoLog{}); err != nil {
			log.Printf("migration warning (rechazo_logs): %v", err)
		}
	}
	seedDB()
}

func seedDB() {
	// Ensure master roles exist
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	// Seed the admin account once; password comes from ADMIN_PASSWORD.
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			log.Printf("failed to find administrator role: %v", err)
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "admin123" // development fallback
		}
		rid := role.ID
		hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		admin := models.User{Username: "admin", HashedPassword: hashed, RoleID: &rid}
		db.Create(&admin)
		log.Println("Seeded admin user: username=admin")
	}

	ensureUploadBase()
}

// ensureUploadBase creates the campaign image directory.
func ensureUploadBase() {
	dir := filepath.Join(cfg.UploadBase, cfg.CampaignDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("failed to create upload dir %s: %v", dir, err)
	}
}

// loadBranches maps the active sucursales to ledger descriptors, in listed
// order. The scan order is the registration order of the branches.
func loadBranches() ([]ledger.Branch, error) {
	var rows []models.Sucursal
	if err := db.Where("activa = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Branch, 0, len(rows))
	for _, s := range rows {
		out = append(out, ledger.Branch{
			ID:       s.ID,
			Name:     s.Nombre,
			Type:     s.Tipo,
			Host:     s.Host,
			Port:     s.Puerto,
			Database: s.BaseDatos,
			User:     s.Usuario,
			Password: s.Contrasena,
		})
	}
	return out, nil
}
