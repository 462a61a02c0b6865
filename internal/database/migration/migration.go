package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Steps are applied in order and recorded in schema_migrations, so adding a
// step to the end of the list upgrades existing databases.
var steps = []migrationStep{
	{
		Name: "create_table_customers",
		SQL: `CREATE TABLE IF NOT EXISTS customers (
  id         BIGSERIAL    PRIMARY KEY,
  name       VARCHAR(255) NOT NULL,
  email      VARCHAR(254) NOT NULL UNIQUE,
  phone      VARCHAR(20),
  created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_products",
		SQL: `CREATE TABLE IF NOT EXISTS products (
  id         BIGSERIAL      PRIMARY KEY,
  name       VARCHAR(255)   NOT NULL,
  price      NUMERIC(10, 2) NOT NULL CHECK (price > 0),
  stock      INTEGER        NOT NULL DEFAULT 0 CHECK (stock >= 0),
  created_at TIMESTAMPTZ    NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_orders",
		SQL: `CREATE TABLE IF NOT EXISTS orders (
  id           BIGSERIAL      PRIMARY KEY,
  customer_id  BIGINT         NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
  order_date   TIMESTAMPTZ    NOT NULL DEFAULT now(),
  total_amount NUMERIC(10, 2) NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ    NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_order_products",
		SQL: `CREATE TABLE IF NOT EXISTS order_products (
  order_id   BIGINT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
  product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
  PRIMARY KEY (order_id, product_id)
);`,
	},
	{
		Name: "create_table_tasks",
		SQL: `CREATE TABLE IF NOT EXISTS tasks (
  id         UUID        PRIMARY KEY,
  name       TEXT        NOT NULL,
  queue      TEXT        NOT NULL,
  args       JSONB,
  status     TEXT        NOT NULL,
  retries    INTEGER     NOT NULL DEFAULT 0,
  result     JSONB,
  error      TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_customers_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_customers_created_at ON customers (created_at);`,
	},
	{
		Name: "create_index_products_stock",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_products_stock ON products (stock);`,
	},
	{
		Name: "create_index_orders_customer_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders (customer_id);`,
	},
	{
		Name: "create_index_orders_order_date",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders (order_date);`,
	},
	{
		Name: "create_index_tasks_status_updated_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_tasks_status_updated_at ON tasks (status, updated_at);`,
	},
}

const createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       TEXT        PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// StepNames lists every migration step in application order.
func StepNames() []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

// EnsureMigrated applies every step not yet recorded in schema_migrations.
// Each step and its ledger row commit together.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger, dbHost string) error {
	start := time.Now()
	log := logger.With("component", "database", "db_host", dbHost)

	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		log.Error("db_migration_failed", "status", "error", "error_message", err.Error())
		return fmt.Errorf("create migration ledger: %w", err)
	}

	applied, err := appliedSteps(ctx, db)
	if err != nil {
		log.Error("db_migration_failed", "status", "error", "error_message", err.Error())
		return err
	}

	pending := 0
	for _, step := range steps {
		if applied[step.Name] {
			continue
		}
		pending++

		stepStart := time.Now()
		if err := applyStep(ctx, db, step); err != nil {
			log.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"step_duration_ms", time.Since(stepStart).Milliseconds())
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds())
	}

	if pending == 0 {
		log.Info("db_migration_skip", "status", "success", "msg", "schema up to date",
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	log.Info("db_migration_success", "status", "success", "applied", pending,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func appliedSteps(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration ledger: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func applyStep(ctx context.Context, db *sql.DB, step migrationStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, step.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
