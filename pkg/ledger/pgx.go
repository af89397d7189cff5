package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// PgxQuerier opens a short-lived connection per lookup. Branch databases are
// independent remote instances; connect-query-close keeps no idle state on
// stores the back office does not own.
type PgxQuerier struct{}

// Supermarket-family branches keep one unified sales header table.
const superQuery = `
SELECT folio, monto_total, fecha_emision, tipo_documento
FROM documentos_venta
WHERE folio = $1
  AND tipo_documento IN ('boleta', 'factura')
  AND fecha_emision >= $2
ORDER BY fecha_emision DESC
LIMIT 1`

// Hardware/multi-store branches split boletas and client invoices.
const ferreteriaQuery = `
SELECT folio, total, fecha, tipo FROM (
    SELECT folio, total, fecha, 'boleta' AS tipo
    FROM boletas WHERE folio = $1 AND fecha >= $2
    UNION ALL
    SELECT folio, total, fecha, 'factura' AS tipo
    FROM facturas_clientes WHERE folio = $1 AND fecha >= $2
) docs
ORDER BY fecha DESC
LIMIT 1`

func (PgxQuerier) FindDocument(ctx context.Context, b Branch, folio string, since time.Time) (*Document, error) {
	var query string
	switch b.Type {
	case TipoSupermercado, TipoSupermerreteria:
		query = superQuery
	case TipoFerreteria, TipoMultitienda:
		query = ferreteriaQuery
	default:
		return nil, nil
	}

	conn, err := pgx.Connect(ctx, branchDSN(b))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", b.Host, err)
	}
	defer conn.Close(ctx)

	var doc Document
	var rawType string
	err = conn.QueryRow(ctx, query, folio, since).Scan(&doc.Folio, &doc.Amount, &doc.IssueDate, &rawType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", b.Database, err)
	}
	doc.DocType = docTypeLabel(rawType)
	return &doc, nil
}

func docTypeLabel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "boleta":
		return DocBoleta
	case "factura":
		return DocFactura
	case "cigarros", "venta_cigarros":
		return DocVentaCigarros
	default:
		return DocOtro
	}
}

func branchDSN(b Branch) string {
	port := b.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		url.QueryEscape(b.User), url.QueryEscape(b.Password), b.Host, port, b.Database)
}
