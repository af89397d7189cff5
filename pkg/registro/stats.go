package registro

import "github.com/beachmarket/concurso-api/models"

// Estadisticas aggregates the campaign so far. Monetary figures cover active
// participations only.
type Estadisticas struct {
	Total         int64   `json:"total_participaciones"`
	Activas       int64   `json:"participaciones_activas"`
	Validas       int64   `json:"boletas_validas"`
	Ganadores     int64   `json:"ganadores"`
	MontoTotal    int64   `json:"monto_total"`
	MontoPromedio float64 `json:"monto_promedio"`
}

func (s *Servicio) Estadisticas() (Estadisticas, error) {
	var st Estadisticas
	db := s.DB.Model(&models.Participacion{})
	if err := db.Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := s.DB.Model(&models.Participacion{}).Where("estado = ?", models.EstadoActivo).Count(&st.Activas).Error; err != nil {
		return st, err
	}
	if err := s.DB.Model(&models.Participacion{}).Where("boleta_valida = ?", true).Count(&st.Validas).Error; err != nil {
		return st, err
	}
	if err := s.DB.Model(&models.Participacion{}).Where("es_ganador = ?", true).Count(&st.Ganadores).Error; err != nil {
		return st, err
	}
	row := s.DB.Model(&models.Participacion{}).
		Where("estado = ?", models.EstadoActivo).
		Select("COALESCE(SUM(monto), 0), COALESCE(AVG(monto), 0)").
		Row()
	if err := row.Scan(&st.MontoTotal, &st.MontoPromedio); err != nil {
		return st, err
	}
	return st, nil
}
