package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebear/pkg/models"
)

//go:embed schema.sql
var schema string

const issueColumns = "id, rank, status, message, reporting_user, created_at, updated_at"

// PostgresIssueStore is a PostgreSQL implementation of the IssueStore interface.
type PostgresIssueStore struct {
	db *pgxpool.Pool
}

// NewPostgresIssueStore creates a new PostgresIssueStore.
func NewPostgresIssueStore(db *pgxpool.Pool) *PostgresIssueStore {
	return &PostgresIssueStore{db: db}
}

// Migrate creates the issues table if it does not exist.
func (s *PostgresIssueStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Create stores a new issue.
func (s *PostgresIssueStore) Create(ctx context.Context, issue *models.Issue) error {
	message, err := json.Marshal(issue.Message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	reporter, err := json.Marshal(issue.ReportingUser)
	if err != nil {
		return fmt.Errorf("marshal reporting user: %w", err)
	}

	_, err = s.db.Exec(ctx,
		"INSERT INTO issues ("+issueColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING",
		issue.ID, issue.Rank, issue.Status, message, reporter, issue.CreatedAt, issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issue %s: %w", issue.ID, err)
	}
	return nil
}

// Get retrieves an issue by its ID.
func (s *PostgresIssueStore) Get(ctx context.Context, id string) (*models.Issue, error) {
	row := s.db.QueryRow(ctx, "SELECT "+issueColumns+" FROM issues WHERE id = $1", id)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// List returns every issue, newest first.
func (s *PostgresIssueStore) List(ctx context.Context) ([]*models.Issue, error) {
	rows, err := s.db.Query(ctx, "SELECT "+issueColumns+" FROM issues ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// Update replaces the mutable fields of an existing issue if its status is
// still expected.
func (s *PostgresIssueStore) Update(ctx context.Context, issue *models.Issue, expected models.Status) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE issues SET rank = $1, status = $2, updated_at = $3 WHERE id = $4 AND status = $5",
		issue.Rank, issue.Status, issue.UpdatedAt, issue.ID, expected)
	if err != nil {
		return fmt.Errorf("update issue %s: %w", issue.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)", issue.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update issue %s: %w", issue.ID, err)
	}
	if !exists {
		return fmt.Errorf("issue %s: %w", issue.ID, ErrNotFound)
	}
	return fmt.Errorf("issue %s is no longer %s: %w", issue.ID, expected, ErrConflict)
}

// Delete removes an issue.
func (s *PostgresIssueStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM issues WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete issue %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// Ping checks the connection pool.
func (s *PostgresIssueStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var (
		issue    models.Issue
		message  []byte
		reporter []byte
	)
	err := row.Scan(&issue.ID, &issue.Rank, &issue.Status, &message, &reporter, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(message, &issue.Message); err != nil {
		return nil, fmt.Errorf("decode message of issue %s: %w", issue.ID, err)
	}
	if err := json.Unmarshal(reporter, &issue.ReportingUser); err != nil {
		return nil, fmt.Errorf("decode reporting user of issue %s: %w", issue.ID, err)
	}
	return &issue, nil
}
