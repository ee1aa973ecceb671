package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lineflow/scheduler/internal/domain"
)

// Postgres is a durable Gateway backed by the manufacturing system's own
// database. It is the production implementation: Retrying wraps it, and the
// in-memory test double stands in for it in tests. The Orchestrator
// addresses everything through the Gateway interface and cannot tell them
// apart.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pooled connection and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) ListSalesOrders(ctx context.Context, status domain.SalesOrderStatus) ([]domain.SalesOrder, error) {
	query := `
		SELECT id, product_id, quantity, deadline, priority, customer_name, customer_rank, notes, status
		FROM sales_orders WHERE status = $1
	`
	rows, err := p.pool.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SalesOrder
	for rows.Next() {
		var so domain.SalesOrder
		if err := rows.Scan(
			&so.ID, &so.ProductID, &so.Quantity, &so.Deadline, &so.Priority,
			&so.Customer.Name, &so.Customer.Rank, &so.Notes, &so.Status,
		); err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	query := `SELECT id, name FROM products WHERE id = $1`
	var product domain.Product
	if err := p.pool.QueryRow(ctx, query, productID).Scan(&product.ID, &product.Name); err != nil {
		return domain.Product{}, err
	}

	bomQuery := `SELECT phase_type, duration_per_unit FROM product_bom_phases WHERE product_id = $1 ORDER BY sequence ASC`
	rows, err := p.pool.Query(ctx, bomQuery, productID)
	if err != nil {
		return domain.Product{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var phase domain.BOMPhase
		if err := rows.Scan(&phase.Type, &phase.DurationPerUnit); err != nil {
			return domain.Product{}, err
		}
		product.BOM = append(product.BOM, phase)
	}
	return product, rows.Err()
}

func (p *Postgres) UpdateSalesOrder(ctx context.Context, id string, update SalesOrderUpdate) error {
	query := `
		UPDATE sales_orders SET
			priority = COALESCE($2, priority),
			quantity = COALESCE($3, quantity),
			notes = COALESCE($4, notes),
			status = COALESCE($5, status),
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := p.pool.Exec(ctx, query, id, update.Priority, update.Quantity, update.Notes, update.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("gateway: sales order not found")
	}
	return nil
}

func (p *Postgres) CreateProductionOrder(ctx context.Context, po NewProductionOrder) (string, error) {
	query := `
		INSERT INTO production_orders (sales_order_id, product_id, quantity, planned_start, planned_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id
	`
	var id string
	err := p.pool.QueryRow(ctx, query,
		po.SalesOrderID, po.ProductID, po.Quantity, po.StartsAt, po.EndsAt, domain.ProductionOrderDraft,
	).Scan(&id)
	return id, err
}

func (p *Postgres) ScheduleProductionOrder(ctx context.Context, poID string) ([]domain.ProductionPhase, error) {
	var productID string
	if err := p.pool.QueryRow(ctx, `SELECT product_id FROM production_orders WHERE id = $1`, poID).Scan(&productID); err != nil {
		return nil, err
	}

	bomRows, err := p.pool.Query(ctx, `SELECT phase_type FROM product_bom_phases WHERE product_id = $1 ORDER BY sequence ASC`, productID)
	if err != nil {
		return nil, err
	}
	var phaseTypes []domain.PhaseType
	for bomRows.Next() {
		var t domain.PhaseType
		if err := bomRows.Scan(&t); err != nil {
			bomRows.Close()
			return nil, err
		}
		phaseTypes = append(phaseTypes, t)
	}
	bomRows.Close()
	if err := bomRows.Err(); err != nil {
		return nil, err
	}

	phases := make([]domain.ProductionPhase, len(phaseTypes))
	for i, t := range phaseTypes {
		query := `
			INSERT INTO production_phases (production_order_id, phase_type, sequence, status, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id
		`
		var id string
		if err := p.pool.QueryRow(ctx, query, poID, t, i, domain.PhaseNotReady).Scan(&id); err != nil {
			return nil, err
		}
		phases[i] = domain.ProductionPhase{ID: id, Type: t, Sequence: i, Status: domain.PhaseNotReady}
	}

	if _, err := p.pool.Exec(ctx, `UPDATE production_orders SET status = $2 WHERE id = $1`, poID, domain.ProductionOrderScheduled); err != nil {
		return nil, err
	}
	return phases, nil
}

func (p *Postgres) UpdatePhaseWindow(ctx context.Context, phaseID string, startsAt, endsAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE production_phases SET planned_start = $2, planned_end = $3 WHERE id = $1`,
		phaseID, startsAt, endsAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("gateway: production phase not found")
	}
	return nil
}

func (p *Postgres) UpdatePOWindow(ctx context.Context, poID string, startsAt, endsAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE production_orders SET planned_start = $2, planned_end = $3 WHERE id = $1`,
		poID, startsAt, endsAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("gateway: production order not found")
	}
	return nil
}

func (p *Postgres) ConfirmProductionOrder(ctx context.Context, poID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE production_orders SET status = $2 WHERE id = $1`,
		poID, domain.ProductionOrderReady,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("gateway: production order not found")
	}
	return nil
}

func (p *Postgres) DeleteProductionOrder(ctx context.Context, poID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM production_orders WHERE id = $1`, poID)
	return err
}

func (p *Postgres) GetProductionOrder(ctx context.Context, poID string) (domain.ProductionOrder, error) {
	query := `
		SELECT id, sales_order_id, product_id, quantity, planned_start, planned_end, status
		FROM production_orders WHERE id = $1
	`
	var po domain.ProductionOrder
	err := p.pool.QueryRow(ctx, query, poID).Scan(
		&po.ID, &po.SalesOrderID, &po.ProductID, &po.Quantity, &po.PlannedStart, &po.PlannedEnd, &po.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductionOrder{}, errors.New("gateway: production order not found")
	}
	if err != nil {
		return domain.ProductionOrder{}, err
	}

	phaseRows, err := p.pool.Query(ctx,
		`SELECT id, phase_type, sequence, planned_start, planned_end, status FROM production_phases WHERE production_order_id = $1 ORDER BY sequence ASC`,
		poID,
	)
	if err != nil {
		return domain.ProductionOrder{}, err
	}
	defer phaseRows.Close()
	for phaseRows.Next() {
		var phase domain.ProductionPhase
		if err := phaseRows.Scan(&phase.ID, &phase.Type, &phase.Sequence, &phase.PlannedStart, &phase.PlannedEnd, &phase.Status); err != nil {
			return domain.ProductionOrder{}, err
		}
		po.Phases = append(po.Phases, phase)
	}
	return po, phaseRows.Err()
}

func (p *Postgres) ListProductionOrders(ctx context.Context, statuses ...domain.ProductionOrderStatus) ([]domain.ProductionOrder, error) {
	var rows pgx.Rows
	var err error
	if len(statuses) == 0 {
		rows, err = p.pool.Query(ctx, `SELECT id, sales_order_id, product_id, quantity, planned_start, planned_end, status FROM production_orders`)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT id, sales_order_id, product_id, quantity, planned_start, planned_end, status FROM production_orders WHERE status = ANY($1)`,
			statuses,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductionOrder
	for rows.Next() {
		var po domain.ProductionOrder
		if err := rows.Scan(&po.ID, &po.SalesOrderID, &po.ProductID, &po.Quantity, &po.PlannedStart, &po.PlannedEnd, &po.Status); err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

var _ Gateway = (*Postgres)(nil)
