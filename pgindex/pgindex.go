// Package pgindex keeps a searchable Postgres index of written archive units.
package pgindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhcgn/mbox-to-archive/manifest"
)

// EnvDSN is read when no DSN is given explicitly.
const EnvDSN = "ARCHIVE_PG_DSN"

var ErrNoDSN = errors.New("pgindex: no DSN given and " + EnvDSN + " not set")

type Index struct {
	pool *pgxpool.Pool
}

// ResolveDSN returns dsn, falling back to the environment.
func ResolveDSN(dsn string) string {
	if dsn = strings.TrimSpace(dsn); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(os.Getenv(EnvDSN))
}

func Open(ctx context.Context, dsn string) (*Index, error) {
	dsn = ResolveDSN(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	idx := &Index{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return idx, nil
}

func (x *Index) ensureSchema(ctx context.Context) error {
	_, err := x.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS archive_units (
  path text PRIMARY KEY,
  unit text NOT NULL,
  kind text NOT NULL,
  folder text,
  message_id text,
  subject text,
  sender text,
  sent_ts timestamptz,
  objects int NOT NULL DEFAULT 0,
  bytes bigint NOT NULL DEFAULT 0,
  indexed_ts timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS archive_units_sent_idx ON archive_units (sent_ts DESC NULLS LAST);
CREATE INDEX IF NOT EXISTS archive_units_message_id_idx ON archive_units (message_id);
CREATE INDEX IF NOT EXISTS archive_units_search_idx ON archive_units USING GIN (to_tsvector('simple', coalesce(subject,'') || ' ' || coalesce(sender,'')));
`)
	return err
}

func (x *Index) Close() {
	x.pool.Close()
}

const upsertStmt = `
INSERT INTO archive_units (path, unit, kind, folder, message_id, subject, sender, sent_ts, objects, bytes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (path) DO UPDATE
  SET unit=EXCLUDED.unit,
      kind=EXCLUDED.kind,
      folder=EXCLUDED.folder,
      message_id=EXCLUDED.message_id,
      subject=EXCLUDED.subject,
      sender=EXCLUDED.sender,
      sent_ts=EXCLUDED.sent_ts,
      objects=EXCLUDED.objects,
      bytes=EXCLUDED.bytes,
      indexed_ts=now();
`

// Record implements manifest.Recorder.
func (x *Index) Record(ctx context.Context, e manifest.Entry) error {
	_, err := x.pool.Exec(ctx, upsertStmt, upsertArgs(e)...)
	if err != nil {
		return fmt.Errorf("index %s: %w", e.Path, err)
	}
	return nil
}

func upsertArgs(e manifest.Entry) []any {
	var size int64
	for _, o := range e.Objects {
		size += o.Size
	}
	var sent *time.Time
	if !e.Date.IsZero() {
		d := e.Date.UTC()
		sent = &d
	}
	return []any{e.Path, e.Unit, string(e.Kind), e.Folder, e.MessageID, e.Subject, e.From, sent, len(e.Objects), size}
}

type Query struct {
	Text   string
	Kind   manifest.Kind
	Folder string
	Since  time.Time
	Until  time.Time
	Limit  int
}

type Hit struct {
	Path      string
	Unit      string
	Kind      manifest.Kind
	Folder    string
	MessageID string
	Subject   string
	From      string
	Date      time.Time
}

// buildSearch renders q into a parameterized statement.
func buildSearch(q Query) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, t := range strings.Fields(strings.ToLower(q.Text)) {
		p := arg(t)
		where = append(where, fmt.Sprintf("(lower(subject) LIKE '%%' || %s || '%%' OR lower(sender) LIKE '%%' || %s || '%%')", p, p))
	}
	if q.Kind != "" {
		where = append(where, fmt.Sprintf("kind = %s", arg(string(q.Kind))))
	}
	if q.Folder != "" {
		where = append(where, fmt.Sprintf("folder ILIKE '%%' || %s || '%%'", arg(q.Folder)))
	}
	if !q.Since.IsZero() {
		where = append(where, fmt.Sprintf("sent_ts >= %s", arg(q.Since)))
	}
	if !q.Until.IsZero() {
		where = append(where, fmt.Sprintf("sent_ts < %s", arg(q.Until)))
	}
	clause := "1=1"
	if len(where) > 0 {
		clause = strings.Join(where, " AND ")
	}
	limit := ""
	if q.Limit > 0 {
		limit = fmt.Sprintf("\nLIMIT %d", q.Limit)
	}
	return fmt.Sprintf(`SELECT path, unit, kind, coalesce(folder,''), coalesce(message_id,''), coalesce(subject,''), coalesce(sender,''), sent_ts
FROM archive_units
WHERE %s
ORDER BY sent_ts DESC NULLS LAST, path%s`, clause, limit), args
}

func (x *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	sql, args := buildSearch(q)
	rows, err := x.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		var kind string
		var sent *time.Time
		if err := rows.Scan(&h.Path, &h.Unit, &kind, &h.Folder, &h.MessageID, &h.Subject, &h.From, &sent); err != nil {
			return nil, err
		}
		h.Kind = manifest.Kind(kind)
		if sent != nil {
			h.Date = *sent
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
