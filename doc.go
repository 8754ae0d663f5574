// Package sqlrt is a database access runtime: it runs templated SQL against
// pooled connections and caches query results.
//
// # Architecture
//
// A statement passes through a fixed set of components:
//
//  1. pkg/statements resolves a statement key to its text and cache TTL.
//  2. pkg/cache looks the result up by a composite key of locator,
//     statement and arguments.
//  3. pkg/pool hands out a connection from a self-tuning per-locator pool.
//     Pools grow when callers find them empty and shrink when connections
//     sit idle; a background replenisher keeps them topped up.
//  4. pkg/script expands {expression} blocks in the statement text.
//  5. pkg/binder replaces ?name tokens with driver placeholders and collects
//     the argument values.
//  6. pkg/datasource executes the statement through pgx, go-sql-driver/mysql,
//     gosnowflake or go-sqlite3.
//
// pkg/executor wires these together behind a Session, which also owns the
// transaction of a locator. pkg/dialect supplies paging, counting and
// last-insert-id statements per database.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/sqlrt/pkg/binder"
//	    "github.com/ajitpratap0/sqlrt/pkg/config"
//	    "github.com/ajitpratap0/sqlrt/pkg/executor"
//	)
//
//	cfg, _ := config.LoadViper("sqlrt.yaml")
//	exec, _ := executor.FromConfig(cfg)
//	defer exec.Close(context.Background())
//
//	s := exec.Session("postgres://app:secret@db/shop")
//	orders, err := s.Query(ctx,
//	    "SELECT id, total FROM orders_{year} WHERE customer = ?customer",
//	    binder.Fixed("year", 2024), binder.Fixed("customer", 42))
//
// Results of Query are cached for the TTL configured on the statement key;
// ExecuteCached takes the TTL explicitly.
//
// # Transactions
//
//	err := s.Transact(ctx, func(tx *executor.Session) error {
//	    vars := []interface{}{binder.Fixed("sku", sku), binder.Fixed("n", n)}
//	    if _, err := tx.Execute(ctx, "UPDATE stock SET qty = qty - ?n WHERE sku = ?sku", vars...); err != nil {
//	        return err
//	    }
//	    _, err := tx.Insert(ctx, "INSERT INTO moves (sku, qty) VALUES (?sku, ?n)", vars...)
//	    return err
//	})
//
// All statements of a transaction run on one connection. A transaction
// connection is never returned to the pool while the transaction is open.
//
// # Configuration
//
// Configuration is read from YAML with SQLRT_ environment overrides:
//
//	pool:
//	  min_size: 5
//	  max_size: 50
//	  initial_target: 10
//	  growth_factor: 1.1
//	  idle_timeout: 30s
//	  replenish_interval: 20s
//	cache:
//	  quota_mode: items
//	  max_items: 10000
//	binder:
//	  unresolved_tokens: fail
//	statements:
//	  files: [statements.yaml]
//
// # Observability
//
// Logging uses zap through pkg/logger. pkg/metrics exports Prometheus
// collectors for pools, cache and statements, and pkg/observability emits
// OpenTelemetry spans per statement.
package sqlrt
