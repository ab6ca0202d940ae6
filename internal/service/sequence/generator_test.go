package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.March, 3, 10, 0, 0, 0, time.UTC) }
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "PAY-2024-007", Format("PAY", 2024, 7))
	assert.Equal(t, "OP-2025-123", Format("OP", 2025, 123))
	assert.Equal(t, "VIS-2025-1234", Format("VIS", 2025, 1234))
}

func TestNextUsesPrefixAndYear(t *testing.T) {
	gen := FromRepository(memory.NewSequenceRepository(memory.NewStore())).WithClock(fixedClock(2024))
	ctx := context.Background()

	cases := []struct {
		kind Kind
		want string
	}{
		{Patient, "PAT-2024-001"},
		{Visit, "VIS-2024-001"},
		{Analysis, "ANA-2024-001"},
		{Payment, "PAY-2024-001"},
		{Prescription, "PRESC-2024-001"},
		{Detail, "DET-2024-001"},
		{Operation, "OP-2024-001"},
		{Payment, "PAY-2024-002"},
	}
	for _, tc := range cases {
		got, err := gen.Next(ctx, tc.kind)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestCountersAreYearScoped(t *testing.T) {
	repo := memory.NewSequenceRepository(memory.NewStore())
	ctx := context.Background()

	n, err := FromRepository(repo).WithClock(fixedClock(2024)).Next(ctx, Payment)
	require.NoError(t, err)
	assert.Equal(t, "PAY-2024-001", n)

	n, err = FromRepository(repo).WithClock(fixedClock(2025)).Next(ctx, Payment)
	require.NoError(t, err)
	assert.Equal(t, "PAY-2025-001", n)
}

func TestUnknownKind(t *testing.T) {
	gen := FromRepository(memory.NewSequenceRepository(memory.NewStore()))
	_, err := gen.Next(context.Background(), Kind("invoice"))
	assert.Error(t, err)
}

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string) (int64, error) {
	return 0, errors.New("db down")
}

func TestCounterErrorPropagates(t *testing.T) {
	_, err := NewGenerator(failingCounter{}).Next(context.Background(), Visit)
	assert.ErrorContains(t, err, "db down")
}

func TestConcurrentNextNeverRepeats(t *testing.T) {
	gen := FromRepository(memory.NewSequenceRepository(memory.NewStore())).WithClock(fixedClock(2024))
	ctx := context.Background()

	const n = 100
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := gen.Next(ctx, Operation)
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
