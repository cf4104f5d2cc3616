package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	"github.com/jmoiron/sqlx"
)

// ReadingRepository implements repositories.ReadingRepository over the
// readings table. Column names only ever come from the field catalog.
// Placeholders go through Rebind so the same queries run on postgres.
type ReadingRepository struct {
	db      *sqlx.DB
	metrics metrics.MetricsCollector
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *sqlx.DB, collector metrics.MetricsCollector) *ReadingRepository {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &ReadingRepository{db: db, metrics: collector}
}

func quote(column string) string {
	return `"` + column + `"`
}

func selectList(fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quote(meter.TimestampColumn))
	for _, f := range fields {
		cols = append(cols, quote(f))
	}
	return strings.Join(cols, ", ")
}

func (r *ReadingRepository) isPostgres() bool {
	return r.db.DriverName() == "postgres"
}

// timeArg binds t in the column's storage form: ISO text on sqlite, a
// timestamptz on postgres.
func (r *ReadingRepository) timeArg(t time.Time) any {
	if r.isPostgres() {
		return t.UTC()
	}
	return meter.FormatTimestamp(t)
}

// timeExpr is the Timestamp column as used in comparisons and ordering. On
// sqlite the column is TEXT, so rows written as "YYYY-MM-DD HH:MM:SS" or with
// an offset are normalised to StorageLayout before comparing.
func (r *ReadingRepository) timeExpr() string {
	ts := quote(meter.TimestampColumn)
	if r.isPostgres() {
		return ts
	}
	return fmt.Sprintf("strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', %s)", ts)
}

// Latest returns the newest reading
func (r *ReadingRepository) Latest(ctx context.Context) (*meter.Reading, error) {
	defer metrics.Since(r.metrics, "latest", time.Now())

	query := fmt.Sprintf(`SELECT %s FROM readings ORDER BY %s DESC LIMIT 1`,
		selectList(meter.Names()), r.timeExpr())

	row := make(map[string]any)
	if err := r.db.QueryRowxContext(ctx, query).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	reading := meter.FromRow(row)
	return &reading, nil
}

// Range returns readings in [start, end] ordered by time
func (r *ReadingRepository) Range(ctx context.Context, start, end time.Time, fields []string) ([]meter.Reading, error) {
	defer metrics.Since(r.metrics, "range", time.Now())

	fields = meter.FilterKnown(fields)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no valid fields requested")
	}

	ts := r.timeExpr()
	query := r.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM readings WHERE %s >= ? AND %s <= ? ORDER BY %s ASC`,
		selectList(fields), ts, ts, ts,
	))

	rows, err := r.db.QueryxContext(ctx, query, r.timeArg(start), r.timeArg(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// MonthlyAverages rolls numeric fields up per month in SQL. Text encoded
// fields are not averaged here.
func (r *ReadingRepository) MonthlyAverages(ctx context.Context, start, end time.Time, fields []string) ([]meter.Reading, error) {
	defer metrics.Since(r.metrics, "monthly_averages", time.Now())

	numeric := make([]string, 0, len(fields))
	for _, name := range meter.FilterKnown(fields) {
		if f, _ := meter.Lookup(name); !f.TextEncoded {
			numeric = append(numeric, name)
		}
	}
	if len(numeric) == 0 {
		return nil, fmt.Errorf("no numeric fields requested")
	}

	ts := r.timeExpr()
	monthKey := fmt.Sprintf("substr(%s, 1, 7)", ts)
	if r.isPostgres() {
		monthKey = fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM')", ts)
	}

	cols := make([]string, 0, len(numeric)+1)
	cols = append(cols, fmt.Sprintf("%s AS %s", monthKey, quote(meter.TimestampColumn)))
	for _, f := range numeric {
		cols = append(cols, fmt.Sprintf("AVG(%s) AS %s", quote(f), quote(f)))
	}

	query := r.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM readings WHERE %s >= ? AND %s <= ? GROUP BY %s ORDER BY %s`,
		strings.Join(cols, ", "), ts, ts, monthKey, monthKey,
	))

	rows, err := r.db.QueryxContext(ctx, query, r.timeArg(start), r.timeArg(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly averages: %w", err)
	}
	defer rows.Close()

	readings, err := scanReadings(rows)
	if err != nil {
		return nil, err
	}

	// AVG over only NULLs yields NULL; keep those as explicit nulls so each
	// point carries every requested field.
	for _, reading := range readings {
		for _, f := range numeric {
			if _, ok := reading.Fields[f]; !ok {
				reading.Fields[f] = nil
			}
		}
	}
	return readings, nil
}

func scanReadings(rows *sqlx.Rows) ([]meter.Reading, error) {
	readings := make([]meter.Reading, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, meter.FromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

// Insert stores one reading. Fields outside the catalog are ignored.
func (r *ReadingRepository) Insert(ctx context.Context, reading meter.Reading) error {
	defer metrics.Since(r.metrics, "insert", time.Now())

	t, err := reading.Time()
	if err != nil {
		return fmt.Errorf("invalid reading timestamp %q: %w", reading.Timestamp, err)
	}

	cols := []string{quote(meter.TimestampColumn)}
	args := []any{r.timeArg(t)}
	for _, f := range meter.Fields {
		v, ok := reading.Fields[f.Name]
		if !ok {
			continue
		}
		arg, err := columnArg(f, v)
		if err != nil {
			return err
		}
		cols = append(cols, quote(f.Name))
		args = append(args, arg)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := r.db.Rebind(fmt.Sprintf(`INSERT INTO readings (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func columnArg(f meter.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.TextEncoded {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	n, ok := meter.ToFloat(v)
	if !ok {
		return nil, fmt.Errorf("field %s: value %v is not numeric", f.Name, v)
	}
	return n, nil
}

// Count returns the number of stored readings
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	defer metrics.Since(r.metrics, "count", time.Now())

	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM readings`); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}
