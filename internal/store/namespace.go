package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SharedNamespace is searched after the tenant namespace for shared objects.
const SharedNamespace = "public"

// Postgres truncates identifiers beyond NAMEDATALEN-1 bytes.
const maxNamespaceLen = 63

var namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidNamespace is returned for names that are not plain identifiers.
var ErrInvalidNamespace = errors.New("invalid namespace")

// ValidateNamespace rejects anything but a plain identifier. Namespace names
// are spliced into DDL and search_path statements, never bound as parameters,
// so this check must run before every such statement.
func ValidateNamespace(name string) error {
	if len(name) > maxNamespaceLen || !namespacePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, name)
	}
	return nil
}

// UnitOfWork is the statement surface of a transaction. pgx.Tx satisfies it.
type UnitOfWork interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ScopeUnitOfWork points unqualified table references issued through uow at
// namespace first, then the shared namespace. The setting is SET LOCAL and
// ends with the transaction.
func ScopeUnitOfWork(ctx context.Context, uow UnitOfWork, namespace string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	stmt := "SET LOCAL search_path TO " + pgx.Identifier{namespace}.Sanitize() + ", " + SharedNamespace
	if _, err := uow.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("scope unit of work: %w", err)
	}
	return nil
}

// Provisioner creates tenant namespaces. It should hold a pool with DDL rights.
type Provisioner struct {
	pool *pgxpool.Pool
}

// NewProvisioner creates a Provisioner over the admin pool.
func NewProvisioner(admin *pgxpool.Pool) *Provisioner {
	return &Provisioner{pool: admin}
}

// EnsureNamespace creates the schema if it does not exist. Concurrent calls
// for the same name all succeed.
func (p *Provisioner) EnsureNamespace(ctx context.Context, name string) error {
	if err := ValidateNamespace(name); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{name}.Sanitize())
	if err != nil && !isSchemaRace(err) {
		return fmt.Errorf("create schema %s: %w", name, err)
	}
	return nil
}

// isSchemaRace reports errors raised when another session created the same
// schema between our existence check and insert.
func isSchemaRace(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P06" || pgErr.Code == "23505" // duplicate_schema, unique_violation
	}
	return false
}

// Namespaces hands out one TenantDB per namespace name, created on first use.
type Namespaces struct {
	pool *pgxpool.Pool

	mu  sync.Mutex
	dbs map[string]*TenantDB
}

// NewNamespaces creates an empty registry over pool.
func NewNamespaces(pool *pgxpool.Pool) *Namespaces {
	return &Namespaces{pool: pool, dbs: make(map[string]*TenantDB)}
}

// For returns the handle for namespace, validating the name on first use.
func (n *Namespaces) For(namespace string) (*TenantDB, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if db, ok := n.dbs[namespace]; ok {
		return db, nil
	}
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	db := &TenantDB{pool: n.pool, namespace: namespace}
	n.dbs[namespace] = db
	return db, nil
}

// Len returns the number of cached handles.
func (n *Namespaces) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dbs)
}

// TenantDB issues transactions scoped to a single tenant namespace.
type TenantDB struct {
	pool      *pgxpool.Pool
	namespace string
}

// Namespace returns the schema this handle is scoped to.
func (d *TenantDB) Namespace() string {
	return d.namespace
}

// InTx runs fn in a transaction whose search_path resolves to this tenant's
// namespace. fn's error rolls the transaction back.
func (d *TenantDB) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tenant tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := ScopeUnitOfWork(ctx, tx, d.namespace); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tenant tx: %w", err)
	}
	return nil
}

// CurrentSchema reports the schema unqualified names resolve to inside a
// unit of work scoped to namespace.
func (n *Namespaces) CurrentSchema(ctx context.Context, namespace string) (string, error) {
	db, err := n.For(namespace)
	if err != nil {
		return "", err
	}
	var schema string
	err = db.InTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, "SELECT current_schema()").Scan(&schema)
	})
	if err != nil {
		return "", fmt.Errorf("current schema: %w", err)
	}
	return schema, nil
}
