package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/beachmarket/concurso-api/models"
	"github.com/beachmarket/concurso-api/pkg/ocr"
	"github.com/beachmarket/concurso-api/pkg/registro"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	r.Static("/uploads", cfg.UploadBase)

	con := r.Group("/concurso")
	con.POST("/participar", participarHandler)
	con.GET("/estadisticas", estadisticasHandler)
	con.GET("/verificar/:numero_boleta", verificarHandler)
	con.POST("/ocr-crop", ocrCropHandler)
	con.POST("/validar-sin-registrar", validarSinRegistrarHandler)

	admin := con.Group("")
	admin.Use(jwtAuthMiddleware())
	admin.GET("/participaciones", listarParticipacionesHandler)
	admin.GET("/participantes-sorteo", participantesSorteoHandler)
	admin.POST("/marcar-ganador", marcarGanadorHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return cfg.JWTSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": usernameVal.(string)})
}

// participarHandler runs the full pipeline: normalize -> multi-pass OCR ->
// folio extraction -> branch ledger lookup -> registration. The OCR-detected
// folio takes precedence; the form value is the fallback when undetected.
func participarHandler(c *gin.Context) {
	file, err := c.FormFile("imagen_boleta")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "La imagen de la boleta es obligatoria"})
		return
	}
	if msg := checkUpload(file); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}
	in := registro.Input{
		NumeroBoleta: c.PostForm("numero_boleta"),
		Nombres:      c.PostForm("nombres"),
		Apellidos:    c.PostForm("apellidos"),
		Rut:          c.PostForm("rut"),
		Email:        c.PostForm("email"),
		Telefono:     c.PostForm("telefono"),
		Direccion:    c.PostForm("direccion"),
	}
	if msg := registro.ValidateInput(in); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}

	tmpPath, err := saveUploadTemp(c, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error al guardar la imagen", "error": err.Error()})
		return
	}
	defer os.Remove(tmpPath)

	res, err := runReceiptPipeline(tmpPath, nil, cfg.OCRLanguage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error al procesar la imagen", "error": err.Error()})
		return
	}
	if res.Detected {
		in.NumeroBoleta = res.Folio
	}

	branches, err := loadBranches()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	match := locator.Locate(c.Request.Context(), branches, in.NumeroBoleta, "")

	p, err := servicio.Registrar(in, match, func(numero string) (string, string, error) {
		return saveReceiptImage(res.Normalized, numero)
	}, res.Outcome.ConcatenatedText, res.Outcome.AverageConfidence)
	if err != nil {
		if re, ok := registro.EsRechazo(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": re.Motivo})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno al registrar la participación", "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"id":      p.ID,
		"message": "Participación registrada con éxito",
		"datos_extraidos": gin.H{
			"numero_boleta":  p.NumeroBoleta,
			"monto":          p.Monto,
			"fecha_emision":  p.FechaEmision.Format("2006-01-02"),
			"tipo_documento": p.TipoDocumento,
			"sucursal":       p.Sucursal,
			"confianza_ocr":  p.ConfianzaOCR,
		},
	})
}

// ocrCropHandler exposes the normalizer+recognizer+extractor without
// registering anything, so the frontend can preview the detected folio.
func ocrCropHandler(c *gin.Context) {
	file, err := c.FormFile("imagen_boleta")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "La imagen es obligatoria"})
		return
	}
	if msg := checkUpload(file); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}
	var crop *ocr.CropRegion
	if c.PostForm("cropWidth") != "" {
		crop = &ocr.CropRegion{
			X:      atoiDefault(c.PostForm("cropX"), 0),
			Y:      atoiDefault(c.PostForm("cropY"), 0),
			Width:  atoiDefault(c.PostForm("cropWidth"), 0),
			Height: atoiDefault(c.PostForm("cropHeight"), 0),
		}
	}
	tmpPath, err := saveUploadTemp(c, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error al guardar la imagen", "error": err.Error()})
		return
	}
	defer os.Remove(tmpPath)

	res, err := runReceiptPipeline(tmpPath, crop, cfg.OCRLanguage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error al procesar la imagen", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"numero_boleta": res.Folio,
		"detectado":     res.Detected,
		"texto_ocr":     res.Outcome.BestText,
		"confianza":     res.Outcome.AverageConfidence,
	})
}

// validarSinRegistrarHandler runs the branch ledger lookup only.
func validarSinRegistrarHandler(c *gin.Context) {
	var req struct {
		NumeroBoleta string `json:"numero_boleta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "numero_boleta es obligatorio"})
		return
	}
	branches, err := loadBranches()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	match := locator.Locate(c.Request.Context(), branches, req.NumeroBoleta, "")
	if !match.Exists {
		c.JSON(http.StatusOK, gin.H{"success": true, "existe": false, "numero_boleta": req.NumeroBoleta})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"existe":              true,
		"numero_boleta":       match.Folio,
		"monto":               match.Amount,
		"fecha_emision":       match.IssueDate.Format("2006-01-02"),
		"tipo_documento":      match.DocType,
		"sucursal":            match.BranchName,
		"tipo_sucursal":       match.BranchType,
		"cumple_monto_minimo": match.MeetsMinimumAmount,
		"cumple_fecha_minima": match.MeetsMinimumDate,
	})
}

func verificarHandler(c *gin.Context) {
	numero := c.Param("numero_boleta")
	existe, fecha, err := servicio.Verificar(numero)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	if !existe {
		c.JSON(http.StatusOK, gin.H{"existe": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"existe": true, "fecha_registro": fecha.Format(time.RFC3339)})
}

func estadisticasHandler(c *gin.Context) {
	st, err := servicio.Estadisticas()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func listarParticipacionesHandler(c *gin.Context) {
	items, err := servicio.Listar()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func participantesSorteoHandler(c *gin.Context) {
	items, err := servicio.CandidatosSorteo()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func marcarGanadorHandler(c *gin.Context) {
	var req struct {
		ParticipanteID uint   `json:"participante_id" binding:"required"`
		Premio         string `json:"premio" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	p, err := servicio.MarcarGanador(req.ParticipanteID, req.Premio)
	if err != nil {
		if errors.Is(err, registro.ErrNoEncontrado) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Participante no encontrado"})
			return
		}
		if re, ok := registro.EsRechazo(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": re.Motivo})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error interno", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": p.ID, "premio": p.Premio, "fecha_sorteo": p.FechaSorteo})
}

// checkUpload enforces the MIME and size contract of the upload boundary.
func checkUpload(file *multipart.FileHeader) string {
	if file.Size > cfg.MaxUploadBytes {
		return "La imagen supera el tamaño máximo de 5MB"
	}
	if !cfg.AllowedMIME[file.Header.Get("Content-Type")] {
		return "Formato de imagen no soportado (solo JPEG o PNG)"
	}
	return ""
}

// saveUploadTemp stores the multipart upload in a temp file for processing.
func saveUploadTemp(c *gin.Context, file *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(file.Filename)
	tmp, err := os.CreateTemp("", "boleta-up-*"+ext)
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	_ = tmp.Close()
	if err := c.SaveUploadedFile(file, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func createAndStoreRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}
