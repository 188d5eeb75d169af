package db

import (
	"context"
	"fmt"
)

// Event tables subject to retention. Nodes are never deleted, only their
// last_seen is cleared when it falls behind the cutoff.
var retentionTables = []string{"messages", "neighbors", "traceroutes"}

func (s *sqliteStore) CountOlderThan(ctx context.Context, cutoff int64) (map[string]int64, error) {
	counts := make(map[string]int64, len(retentionTables))
	for _, table := range retentionTables {
		var n int64
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE timestamp < ?", table), cutoff).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("counting old rows in %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// DeleteOlderThan removes event rows older than cutoff in batches so the
// writer lock is never held across one huge delete. Returns rows deleted.
func (s *sqliteStore) DeleteOlderThan(ctx context.Context, cutoff int64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}

	var total int64
	for _, table := range retentionTables {
		for {
			var affected int64
			err := s.write(ctx, func() error {
				res, err := s.db.ExecContext(ctx,
					fmt.Sprintf(`DELETE FROM %s WHERE rowid IN
						(SELECT rowid FROM %s WHERE timestamp < ? LIMIT ?)`, table, table),
					cutoff, batchSize)
				if err != nil {
					return err
				}
				affected, err = res.RowsAffected()
				return err
			})
			if err != nil {
				return total, fmt.Errorf("deleting old rows from %s: %w", table, err)
			}

			total += affected
			if affected < int64(batchSize) {
				break
			}
		}
	}

	err := s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE nodes SET last_seen = NULL WHERE last_seen < ?", cutoff)
		return err
	})
	if err != nil {
		return total, fmt.Errorf("clearing stale last_seen: %w", err)
	}

	return total, nil
}

func (s *sqliteStore) Vacuum(ctx context.Context) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "VACUUM")
		return err
	})
}
