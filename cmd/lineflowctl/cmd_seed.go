package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/lineflow/scheduler/internal/domain"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo products and sales orders into the manufacturing database",
	Long: `Inserts a small demo dataset (two products with multi-phase BOMs and
three sales orders at varying deadlines and priorities) so the pipeline
can be driven end to end against a fresh database. Reads DATABASE_URL
from the environment, same as the control plane.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	dbURL := envDefault("DATABASE_URL", "")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := seedProduct(ctx, pool, "WIDGET", "Standard Widget", []domain.BOMPhase{
		{Type: domain.PhaseSMT, DurationPerUnit: 2},
		{Type: domain.PhaseTest, DurationPerUnit: 1},
	}); err != nil {
		return fmt.Errorf("seeding product WIDGET: %w", err)
	}
	if err := seedProduct(ctx, pool, "GADGET", "Deluxe Gadget", []domain.BOMPhase{
		{Type: domain.PhaseSMT, DurationPerUnit: 3},
		{Type: domain.PhaseAOI, DurationPerUnit: 1},
		{Type: domain.PhaseTest, DurationPerUnit: 2},
		{Type: domain.PhasePack, DurationPerUnit: 1},
	}); err != nil {
		return fmt.Errorf("seeding product GADGET: %w", err)
	}

	now := time.Now().UTC()
	orders := []domain.SalesOrder{
		{ID: "SO-1001", ProductID: "WIDGET", Quantity: 200, Priority: 2, Deadline: now.Add(48 * time.Hour), Customer: domain.Customer{Name: "Acme Corp"}, Status: domain.SalesOrderAccepted},
		{ID: "SO-1002", ProductID: "WIDGET", Quantity: 50, Priority: 1, Deadline: now.Add(12 * time.Hour), Customer: domain.Customer{Name: "Northwind"}, Status: domain.SalesOrderAccepted},
		{ID: "SO-1003", ProductID: "GADGET", Quantity: 30, Priority: 3, Deadline: now.Add(96 * time.Hour), Customer: domain.Customer{Name: "Acme Corp"}, Status: domain.SalesOrderAccepted},
	}
	for _, so := range orders {
		if err := seedSalesOrder(ctx, pool, so); err != nil {
			return fmt.Errorf("seeding sales order %s: %w", so.ID, err)
		}
	}

	fmt.Printf("seeded 2 products and %d sales orders\n", len(orders))
	return nil
}

func seedProduct(ctx context.Context, pool *pgxpool.Pool, id, name string, bom []domain.BOMPhase) error {
	if _, err := pool.Exec(ctx, `
		INSERT INTO products (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, id, name); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `DELETE FROM product_bom_phases WHERE product_id = $1`, id); err != nil {
		return err
	}
	for i, phase := range bom {
		if _, err := pool.Exec(ctx, `
			INSERT INTO product_bom_phases (product_id, phase_type, duration_per_unit, sequence)
			VALUES ($1, $2, $3, $4)
		`, id, phase.Type, phase.DurationPerUnit, i); err != nil {
			return err
		}
	}
	return nil
}

func seedSalesOrder(ctx context.Context, pool *pgxpool.Pool, so domain.SalesOrder) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO sales_orders (id, product_id, quantity, deadline, priority, customer_name, customer_rank, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id, quantity = EXCLUDED.quantity, deadline = EXCLUDED.deadline,
			priority = EXCLUDED.priority, customer_name = EXCLUDED.customer_name, customer_rank = EXCLUDED.customer_rank,
			notes = EXCLUDED.notes, status = EXCLUDED.status
	`, so.ID, so.ProductID, so.Quantity, so.Deadline, so.Priority, so.Customer.Name, so.Customer.Rank, so.Notes, so.Status)
	return err
}
