package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SeenItemRepository is a content-hash dedupe store keyed by an arbitrary
// task key (the RSS poller passes its task name); tasks like the RSS poller use
// it to avoid reprocessing an item they have already seen. Adapted from
// the teacher's content-cache repository, trimmed to the fields a task's
// DoWork actually needs.
type SeenItemRepository struct {
	db *Database
}

func NewSeenItemRepository(db *Database) *SeenItemRepository {
	return &SeenItemRepository{db: db}
}

// HashContent creates a SHA256 hash of the content used for dedupe.
func (r *SeenItemRepository) HashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

func (r *SeenItemRepository) Exists(ctx context.Context, itemHash, taskKey string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM seen_items WHERE item_hash = $1 AND task_key = $2`
	err := r.db.GetContext(ctx, &count, query, itemHash, taskKey)
	if err != nil {
		return false, fmt.Errorf("failed to check seen items: %w", err)
	}
	return count > 0, nil
}

func (r *SeenItemRepository) AddBatch(ctx context.Context, hashes []string, source, taskKey string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO seen_items (item_hash, source, task_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_hash, task_key) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, hash := range hashes {
		if _, err := stmt.ExecContext(ctx, hash, source, taskKey); err != nil {
			return fmt.Errorf("failed to insert seen item: %w", err)
		}
	}

	return tx.Commit()
}

// FilterNew returns the entries of contents not already recorded for
// taskKey, together with their hashes, hashing each content string first.
func (r *SeenItemRepository) FilterNew(ctx context.Context, contents []string, taskKey string) ([]string, []string, error) {
	var newContents, newHashes []string
	for _, content := range contents {
		hash := r.HashContent(content)
		exists, err := r.Exists(ctx, hash, taskKey)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			newContents = append(newContents, content)
			newHashes = append(newHashes, hash)
		}
	}
	return newContents, newHashes, nil
}

func (r *SeenItemRepository) CleanOld(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM seen_items WHERE created_at < $1`
	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean old seen items: %w", err)
	}
	return result.RowsAffected()
}
