package sqlite

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	documentsTable = "documents"
	ruleSetsTable  = "rule_sets"
)

// quoteIdentifier safely quotes an identifier, such as a table or column name,
// to prevent SQL injection and to handle names that might be keywords or contain
// special characters.
func (s *Store) quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// getTableName constructs the full, quoted table name by applying the configured
// table prefix to the base name.
func (s *Store) getTableName(baseName string) string {
	return s.quoteIdentifier(s.options.TablePrefix + baseName)
}

// EnsureSchema creates the store's tables and indexes. With DropIfExists set,
// existing tables are dropped first.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.transact(ctx, func(tx *Store) error {
		if s.options.DropIfExists {
			if err := tx.dropTables(ctx); err != nil {
				return err
			}
		}
		for _, stmt := range tx.schemaSQL() {
			if _, err := tx.runner().ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
			}
		}
		s.logger.Debug("Schema ensured", zap.String("prefix", s.options.TablePrefix), zap.Bool("dropped", s.options.DropIfExists))
		return nil
	})
}

// DropSchema removes the store's tables.
func (s *Store) DropSchema(ctx context.Context) error {
	return s.transact(ctx, func(tx *Store) error {
		return tx.dropTables(ctx)
	})
}

func (s *Store) dropTables(ctx context.Context) error {
	for _, table := range []string{documentsTable, ruleSetsTable} {
		stmt := "DROP TABLE IF EXISTS " + s.getTableName(table)
		if _, err := s.runner().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// schemaSQL generates the DDL statements for both tables and their indexes.
func (s *Store) schemaSQL() []string {
	create := "CREATE TABLE "
	createIndex := "CREATE INDEX "
	if s.options.IfNotExists {
		create += "IF NOT EXISTS "
		createIndex += "IF NOT EXISTS "
	}

	statements := []string{
		create + s.getTableName(documentsTable) + ` (
    "id" TEXT NOT NULL,
    "collection" TEXT NOT NULL,
    "body" TEXT NOT NULL,
    "created_at" INTEGER NOT NULL,
    PRIMARY KEY ("collection", "id")
);`,
		create + s.getTableName(ruleSetsTable) + ` (
    "id" TEXT NOT NULL PRIMARY KEY,
    "name" TEXT NOT NULL,
    "collection" TEXT NOT NULL,
    "rules" TEXT NOT NULL,
    "created_at" INTEGER NOT NULL,
    "updated_at" INTEGER NOT NULL
);`,
	}

	if s.options.CreateIndexes {
		statements = append(statements,
			createIndex+s.quoteIdentifier(s.options.TablePrefix+"idx_rule_sets_collection")+
				" ON "+s.getTableName(ruleSetsTable)+` ("collection");`,
		)
	}
	return statements
}
