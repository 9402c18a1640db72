package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asaidimu/go-sieve/core/filter"
	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsertDocuments stores docs as JSON bodies in a single transaction.
// Documents without an "id" get a UUID; the stored copies are returned.
func (s *Store) InsertDocuments(ctx context.Context, collection string, docs []filter.Document) ([]filter.Document, error) {
	if len(docs) == 0 {
		return []filter.Document{}, nil
	}

	stored := make([]filter.Document, 0, len(docs))
	sqlQuery := `INSERT INTO ` + s.getTableName(documentsTable) +
		` ("id", "collection", "body", "created_at") VALUES (?, ?, ?, ?)`
	createdAt := time.Now().UnixMilli()

	err := s.transact(ctx, func(tx *Store) error {
		for i, doc := range docs {
			record := make(filter.Document, len(doc)+1)
			for k, v := range doc {
				record[k] = v
			}
			id, ok := record["id"]
			if !ok || id == nil || id == "" {
				id = uuid.New().String()
				record["id"] = id
			}

			body, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to encode document %d: %w", i, err)
			}

			tx.logger.Debug("Executing SQL INSERT", zap.String("sql", sqlQuery), zap.String("collection", collection))
			if _, err := tx.runner().ExecContext(ctx, sqlQuery, fmt.Sprint(id), collection, string(body), createdAt); err != nil {
				tx.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", sqlQuery))
				return fmt.Errorf("failed to insert document %d: %w", i, err)
			}

			// Reload through JSON so callers see what ListDocuments returns.
			var decoded filter.Document
			if err := json.Unmarshal(body, &decoded); err != nil {
				return fmt.Errorf("failed to decode document %d: %w", i, err)
			}
			stored = append(stored, decoded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListDocuments returns the documents of a collection in insertion order.
func (s *Store) ListDocuments(ctx context.Context, collection string) ([]filter.Document, error) {
	sqlQuery := `SELECT "body" FROM ` + s.getTableName(documentsTable) +
		` WHERE "collection" = ? ORDER BY "rowid"`

	s.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.String("collection", collection))
	rows, err := s.runner().QueryContext(ctx, sqlQuery, collection)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()

	docs := []filter.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var doc filter.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document body: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return docs, nil
}

// SaveRuleSet inserts rs or, when its ID exists, replaces everything but the
// creation time.
func (s *Store) SaveRuleSet(ctx context.Context, rs persistence.RuleSet) error {
	rules, err := json.Marshal(rs.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	sqlQuery := `INSERT INTO ` + s.getTableName(ruleSetsTable) +
		` ("id", "name", "collection", "rules", "created_at", "updated_at") VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT ("id") DO UPDATE SET
    "name" = excluded."name",
    "collection" = excluded."collection",
    "rules" = excluded."rules",
    "updated_at" = excluded."updated_at"`

	s.logger.Debug("Executing SQL UPSERT", zap.String("sql", sqlQuery), zap.String("id", rs.ID))
	_, err = s.runner().ExecContext(ctx, sqlQuery,
		rs.ID, rs.Name, rs.Collection, string(rules), rs.CreatedAt.UnixMilli(), rs.UpdatedAt.UnixMilli())
	if err != nil {
		s.logger.Error("Failed to execute UPSERT query", zap.Error(err), zap.String("sql", sqlQuery))
		return fmt.Errorf("failed to save rule set: %w", err)
	}
	return nil
}

// GetRuleSet returns persistence.ErrRuleSetNotFound for an unknown id.
func (s *Store) GetRuleSet(ctx context.Context, id string) (*persistence.RuleSet, error) {
	sqlQuery := `SELECT "id", "name", "collection", "rules", "created_at", "updated_at" FROM ` +
		s.getTableName(ruleSetsTable) + ` WHERE "id" = ?`

	rs, err := scanRuleSet(s.runner().QueryRowContext(ctx, sqlQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrRuleSetNotFound
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// ListRuleSets returns every rule set, oldest first.
func (s *Store) ListRuleSets(ctx context.Context) ([]persistence.RuleSet, error) {
	sqlQuery := `SELECT "id", "name", "collection", "rules", "created_at", "updated_at" FROM ` +
		s.getTableName(ruleSetsTable) + ` ORDER BY "created_at", "rowid"`

	rows, err := s.runner().QueryContext(ctx, sqlQuery)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()

	sets := []persistence.RuleSet{}
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return sets, nil
}

// DeleteRuleSet returns persistence.ErrRuleSetNotFound for an unknown id.
func (s *Store) DeleteRuleSet(ctx context.Context, id string) error {
	sqlQuery := `DELETE FROM ` + s.getTableName(ruleSetsTable) + ` WHERE "id" = ?`

	s.logger.Debug("Executing SQL DELETE", zap.String("sql", sqlQuery), zap.String("id", id))
	result, err := s.runner().ExecContext(ctx, sqlQuery, id)
	if err != nil {
		s.logger.Error("Failed to execute DELETE query", zap.Error(err), zap.String("sql", sqlQuery))
		return fmt.Errorf("failed to execute DELETE query: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return persistence.ErrRuleSetNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleSet(row rowScanner) (*persistence.RuleSet, error) {
	var (
		rs        persistence.RuleSet
		rules     string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rs.ID, &rs.Name, &rs.Collection, &rules, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule set: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &rs.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules of rule set %s: %w", rs.ID, err)
	}
	rs.CreatedAt = time.UnixMilli(createdAt).UTC()
	rs.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rs, nil
}
