// Package pgvector implements the vector store client on PostgreSQL with the
// pgvector extension. Each index is a table named with TablePrefix.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/efebarandurmaz/ragline/internal/vector"
)

// TablePrefix marks tables that hold ragline indexes.
const TablePrefix = "rl_"

var indexNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,49}$`)

// Client implements vector.Client on a database/sql pool.
type Client struct {
	db *sql.DB
}

// Connect is a vector.Connector for PostgreSQL. It uses ep.DSN, or builds
// one from host and port.
func Connect(ctx context.Context, ep vector.Endpoint) (vector.Client, error) {
	dsn := ep.DSN
	if dsn == "" {
		port := ep.Port
		if port == 0 {
			port = 5432
		}
		dsn = fmt.Sprintf("postgres://%s:%d/ragline?sslmode=disable", ep.Host, port)
	}
	return Open(ctx, dsn)
}

// Open opens and pings the database and enables the vector extension.
func Open(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pgvector: %w", err)
	}
	return &Client{db: db}, nil
}

// NewFromDB wraps an open database handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = current_schema() AND tablename LIKE $1`,
		TablePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, strings.TrimPrefix(table, TablePrefix))
	}
	return names, rows.Err()
}

func (c *Client) CreateIndex(ctx context.Context, spec vector.IndexSpec) error {
	stmts, err := createStatements(spec)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", spec.Name, err)
		}
	}
	return tx.Commit()
}

func (c *Client) GetIndex(ctx context.Context, name string) (vector.Index, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}

	var typ string
	err = c.db.QueryRowContext(ctx, `
		SELECT format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding'`, table).Scan(&typ)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("index %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("describe index %s: %w", name, err)
	}

	return &Table{db: c.db, table: table, cast: columnCast(typ)}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Table implements vector.Index for one pgvector table.
type Table struct {
	db    *sql.DB
	table string
	cast  string
}

func (t *Table) Upsert(ctx context.Context, records []vector.Record) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata)
		VALUES ($1, $2::%s, $3)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, quote(t.table), t.cast))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, formatVector(r.Vector), meta); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (t *Table) Query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, metadata, 1 - (embedding <=> $1::%[2]s) AS score
		FROM %[1]s
		ORDER BY embedding <=> $1::%[2]s
		LIMIT $2`, quote(t.table), t.cast), formatVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	matches := []vector.Match{}
	for rows.Next() {
		var (
			id    string
			raw   []byte
			score float64
		)
		if err := rows.Scan(&id, &raw, &score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var meta any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &meta); err != nil {
				meta = string(raw)
			}
		}
		matches = append(matches, vector.Match{ID: id, Similarity: score, Meta: meta})
	}
	return matches, rows.Err()
}

func createStatements(spec vector.IndexSpec) ([]string, error) {
	table, err := tableName(spec.Name)
	if err != nil {
		return nil, err
	}
	if spec.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", spec.Dimension)
	}

	col := columnType(spec.Precision)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding %s(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, quote(table), col, spec.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s_cosine_ops)`,
			quote(table+"_hnsw"), quote(table), col),
	}, nil
}

// columnType picks the pgvector column type. pgvector has no int8 type, so
// reduced precision maps to halfvec.
func columnType(p vector.Precision) string {
	if p == vector.PrecisionFloat32 {
		return "vector"
	}
	return "halfvec"
}

func columnCast(formatted string) string {
	if strings.HasPrefix(formatted, "halfvec") {
		return "halfvec"
	}
	return "vector"
}

func tableName(index string) (string, error) {
	name := strings.ToLower(strings.ReplaceAll(index, "-", "_"))
	if !indexNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid index name %q", index)
	}
	return TablePrefix + name, nil
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// formatVector renders v in pgvector text form: "[0.1,0.2,0.3]".
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
