package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/bundler/internal/model"
	"github.com/logflow/bundler/internal/pool"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/pipeline"
)

// DuckDBSource reads events through DuckDB's read_csv, sorted by user and time.
type DuckDBSource struct {
	path    string
	opts    CSVOptions
	handler *pipeline.ErrorHandler
	rows    int64
}

// NewDuckDBSource creates a source reading the CSV file at path.
func NewDuckDBSource(path string, opts CSVOptions, handler *pipeline.ErrorHandler) *DuckDBSource {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if handler == nil {
		handler = pipeline.NewErrorHandler(pipeline.ErrorPolicyStrict)
	}
	return &DuckDBSource{path: path, opts: opts, handler: handler}
}

// Name returns the adapter name.
func (s *DuckDBSource) Name() string {
	return "duckdb"
}

// Rows returns the number of rows returned by the query. Row numbers in
// error records count rows in query order, not file order.
func (s *DuckDBSource) Rows() int64 {
	return s.rows
}

// Query returns the SQL statement used to read the input.
func (s *DuckDBSource) Query() string {
	columns := make([]string, len(InputColumns))
	for i, c := range InputColumns {
		columns[i] = fmt.Sprintf("'%s': 'VARCHAR'", c)
	}
	return fmt.Sprintf(
		`SELECT "timestamp", user_id, friend_id, friend_name FROM read_csv(%s, delim=%s, header=%t, columns={%s}) ORDER BY user_id, "timestamp"`,
		quoteLiteral(s.path), quoteLiteral(string(s.opts.Delimiter)), s.opts.Header, strings.Join(columns, ", "),
	)
}

// Read implements pipeline.Source.
func (s *DuckDBSource) Read(ctx context.Context, out chan<- *model.Event) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return errs.Wrap(err, errs.CodeDuckDBQuery, "failed to open duckdb")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, s.Query())
	if err != nil {
		return errs.Wrap(err, errs.CodeDuckDBQuery, "failed to query input").
			WithContext("path", s.path)
	}
	defer rows.Close()

	var raw, userID, friendID, friendName sql.NullString
	for rows.Next() {
		s.rows++
		if err := rows.Scan(&raw, &userID, &friendID, &friendName); err != nil {
			return errs.Wrap(err, errs.CodeDuckDBQuery, "failed to scan row")
		}

		ts, err := pool.ParseTimestamp(pool.StringToBytes(strings.TrimSpace(raw.String)), s.opts.Location)
		if err == nil && userID.String == "" {
			err = errs.New(errs.CodeInvalidFormat, "empty user_id")
		} else if err != nil {
			err = errs.InvalidTimestamp(raw.String, s.rows)
		}
		if err != nil {
			cont, handleErr := s.handler.HandleError(pipeline.ErrorRecord{
				Stage:     pipeline.StageInput,
				RowNumber: s.rows,
				RawData:   strings.Join([]string{raw.String, userID.String, friendID.String, friendName.String}, string(s.opts.Delimiter)),
				Source:    s.path,
				Err:       err,
			})
			if !cont {
				return handleErr
			}
			continue
		}

		event := &model.Event{
			Timestamp:  ts,
			UserID:     userID.String,
			FriendID:   friendID.String,
			FriendName: friendName.String,
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- event:
		}
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(err, errs.CodeDuckDBQuery, "failed to read rows")
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
