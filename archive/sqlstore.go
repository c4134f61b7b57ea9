package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chat-scribe/backend/telemetry"
)

// SQLStore is the Postgres-backed Store. It is safe for concurrent use; the
// title PRIMARY KEY enforces archive-side uniqueness.
type SQLStore struct {
	DB *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) Create(ctx context.Context, rec Record) error {
	ctx, span := telemetry.StartSpan(ctx, "archive", "archive.create",
		attribute.String("record.title", rec.Title))
	defer span.End()

	targets, err := json.Marshal(rec.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	start := time.Now()
	// ON CONFLICT DO NOTHING keeps the conflict side-effect free; zero rows
	// affected means the title was already taken.
	res, err := s.DB.ExecContext(ctx, `INSERT INTO records (title, owner, targets, created_at, payload)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (title) DO NOTHING`,
		rec.Title, rec.Owner, string(targets), rec.CreatedAt, rec.Payload)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record rows: %w", err)
	}
	if n == 0 {
		telemetry.RecordError(span, ErrTitleExists)
		return ErrTitleExists
	}
	if telemetry.StoreCreateDuration != nil {
		telemetry.StoreCreateDuration.Observe(time.Since(start).Seconds())
	}
	slog.Debug("record archived", slog.String("title", rec.Title), slog.Int("payload_bytes", len(rec.Payload)))
	return nil
}

func (s *SQLStore) GetByTitle(ctx context.Context, title string) (Record, error) {
	var (
		rec     Record
		targets string
	)
	row := s.DB.QueryRowContext(ctx,
		`SELECT title, owner, targets, created_at, payload FROM records WHERE title = $1`, title)
	err := row.Scan(&rec.Title, &rec.Owner, &targets, &rec.CreatedAt, &rec.Payload)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("select record: %w", err)
	}
	if targets != "" {
		if err := json.Unmarshal([]byte(targets), &rec.Targets); err != nil {
			return Record{}, fmt.Errorf("unmarshal targets: %w", err)
		}
	}
	return rec, nil
}

func (s *SQLStore) ListPage(ctx context.Context, offset, limit int) ([]ListItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT title, owner, created_at FROM records ORDER BY created_at ASC, title ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	items := make([]ListItem, 0)
	for rows.Next() {
		var it ListItem
		if err := rows.Scan(&it.Title, &it.Owner, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, title string) error {
	ctx, span := telemetry.StartSpan(ctx, "archive", "archive.delete",
		attribute.String("record.title", title))
	defer span.End()

	res, err := s.DB.ExecContext(ctx, `DELETE FROM records WHERE title = $1`, title)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
