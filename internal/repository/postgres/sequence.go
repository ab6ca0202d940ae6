package postgres

import (
	"context"
	"fmt"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
)

type sequenceRepository struct {
	BaseRepository
}

func NewSequenceRepository(base BaseRepository) repository.SequenceRepository {
	return &sequenceRepository{base}
}

// Increment bumps the counter in a single statement, so concurrent callers
// serialize on the row lock and each observe a distinct value.
func (r *sequenceRepository) Increment(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO counters (key, seq) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq`

	var seq int64
	if err := r.ext(ctx).QueryRowxContext(ctx, query, key).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return seq, nil
}
