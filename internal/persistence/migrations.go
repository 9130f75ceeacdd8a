package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// RunMigrations applies the *.sql files found in dir to the transcript
// archive, in lexical order. Failures surface as PERSISTENCE_FAILED so the
// caller sees them in the engine's error taxonomy.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, dir string, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.NewPersistence(fmt.Errorf("read migrations dir %s: %w", dir, err))
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	for _, name := range filenames {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return apperrors.NewPersistence(fmt.Errorf("read migration %s: %w", name, err))
		}

		logger.Info("applying migration", zap.String("file", name))
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return apperrors.NewPersistence(fmt.Errorf("apply migration %s: %w", name, err))
		}
	}

	logger.Info("transcript archive schema up to date", zap.Int("migrations", len(filenames)))
	return nil
}
