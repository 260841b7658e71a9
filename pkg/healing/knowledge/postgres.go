/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// schemaDDL creates the success_patterns table this store reads and
// writes. Callers that manage migrations elsewhere can ignore it;
// OpenPostgresStore does not run it automatically.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS success_patterns (
	id               BIGSERIAL PRIMARY KEY,
	error_code       TEXT NOT NULL,
	cluster_id       TEXT NOT NULL,
	fix_description  TEXT NOT NULL,
	fix_diff         TEXT NOT NULL DEFAULT '',
	success_count    INTEGER NOT NULL DEFAULT 1,
	avg_confidence   DOUBLE PRECISION NOT NULL,
	tags             TEXT NOT NULL DEFAULT '',
	last_success_at  TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (error_code, cluster_id, fix_description)
);
`

// PostgresStore is the durable ColdStore backend. It drives
// database/sql with the pgx stdlib driver (rather than pgx's native
// pool interface) so it can be exercised in tests against
// DATA-DOG/go-sqlmock without a live database.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects to dsn using pgx's QueryExecModeDescribeExec,
// which describes each query for correct parameter typing without
// caching prepared plans that a schema migration could invalidate out
// from under a long-lived connection.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("pgx", dsn+sep+"default_query_exec_mode=describe_exec")
	if err != nil {
		return nil, cherrors.DatabaseError("open postgres connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cherrors.DatabaseError("ping postgres", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already-open *sql.DB, letting tests
// substitute a sqlmock-backed connection.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates success_patterns if it doesn't already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return cherrors.DatabaseError("migrate success_patterns schema", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) UpsertPattern(ctx context.Context, errorCode, clusterID, fixDescription, fixDiff string, confidence float64) (*SuccessPattern, error) {
	now := time.Now()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, success_count, avg_confidence
		FROM success_patterns
		WHERE error_code = $1 AND cluster_id = $2 AND fix_description = $3`,
		errorCode, clusterID, fixDescription)

	var id int64
	var successCount int
	var avgConfidence float64
	err := row.Scan(&id, &successCount, &avgConfidence)

	switch {
	case err == sql.ErrNoRows:
		tags := strings.Join(TagsFor(confidence), ",")
		insertRow := s.db.QueryRowContext(ctx, `
			INSERT INTO success_patterns
				(error_code, cluster_id, fix_description, fix_diff, success_count, avg_confidence, tags, last_success_at, created_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $7)
			RETURNING id`,
			errorCode, clusterID, fixDescription, fixDiff, confidence, tags, now)
		if scanErr := insertRow.Scan(&id); scanErr != nil {
			return nil, cherrors.DatabaseError("insert success pattern", scanErr)
		}
		return &SuccessPattern{
			ID: id, ErrorCode: errorCode, ClusterID: clusterID, FixDescription: fixDescription,
			FixDiff: fixDiff, SuccessCount: 1, AvgConfidence: confidence,
			Tags: TagsFor(confidence), LastSuccessAt: now, CreatedAt: now,
		}, nil

	case err != nil:
		return nil, cherrors.DatabaseError("look up success pattern for upsert", err)

	default:
		newCount := successCount + 1
		newAvg := runningAverage(avgConfidence, newCount, confidence)
		tags := strings.Join(TagsFor(newAvg), ",")
		if _, err := s.db.ExecContext(ctx, `
			UPDATE success_patterns
			SET success_count = $1, avg_confidence = $2, tags = $3, fix_diff = $4, last_success_at = $5
			WHERE id = $6`,
			newCount, newAvg, tags, fixDiff, now, id); err != nil {
			return nil, cherrors.DatabaseError("update success pattern", err)
		}
		return &SuccessPattern{
			ID: id, ErrorCode: errorCode, ClusterID: clusterID, FixDescription: fixDescription,
			FixDiff: fixDiff, SuccessCount: newCount, AvgConfidence: newAvg,
			Tags: TagsFor(newAvg), LastSuccessAt: now,
		}, nil
	}
}

func (s *PostgresStore) PatternsByClusterID(ctx context.Context, clusterID string) ([]*SuccessPattern, error) {
	return s.queryPatterns(ctx, "WHERE cluster_id = $1", clusterID)
}

func (s *PostgresStore) PatternsByErrorCode(ctx context.Context, errorCode string) ([]*SuccessPattern, error) {
	return s.queryPatterns(ctx, "WHERE error_code = $1", errorCode)
}

func (s *PostgresStore) PatternsByFamily(ctx context.Context, family string) ([]*SuccessPattern, error) {
	return s.queryPatterns(ctx, "WHERE error_code LIKE $1", family+"%")
}

func (s *PostgresStore) AllPatterns(ctx context.Context) ([]*SuccessPattern, error) {
	return s.queryPatterns(ctx, "")
}

func (s *PostgresStore) queryPatterns(ctx context.Context, whereClause string, args ...any) ([]*SuccessPattern, error) {
	query := `
		SELECT id, error_code, cluster_id, fix_description, fix_diff, success_count, avg_confidence, tags, last_success_at, created_at
		FROM success_patterns ` + whereClause + `
		ORDER BY success_count DESC, avg_confidence DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cherrors.DatabaseError("query success patterns", err)
	}
	defer rows.Close()

	var out []*SuccessPattern
	for rows.Next() {
		var p SuccessPattern
		var tags string
		if err := rows.Scan(&p.ID, &p.ErrorCode, &p.ClusterID, &p.FixDescription, &p.FixDiff,
			&p.SuccessCount, &p.AvgConfidence, &tags, &p.LastSuccessAt, &p.CreatedAt); err != nil {
			return nil, cherrors.DatabaseError("scan success pattern row", err)
		}
		if tags != "" {
			p.Tags = strings.Split(tags, ",")
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, cherrors.DatabaseError("iterate success pattern rows", err)
	}
	return out, nil
}

func (s *PostgresStore) DeletePatterns(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM success_patterns WHERE id IN (%s)", strings.Join(placeholders, ","))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, cherrors.DatabaseError("delete success patterns", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, cherrors.DatabaseError("read rows affected after delete", err)
	}
	return int(affected), nil
}
