package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsOrdered(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, 1, migrations[0].Version)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
	for _, table := range []string{"payments", "operations", "analyses", "visits", "medical_records", "counters", "outbox_events", "audit_logs"} {
		assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestWhereBuilder(t *testing.T) {
	w := &where{}
	assert.Equal(t, "", w.sql())

	w.add("patient_id = $%d", "p")
	w.add("status = $%d", "paid")
	assert.Equal(t, " WHERE patient_id = $1 AND status = $2", w.sql())
	assert.Equal(t, " LIMIT $3 OFFSET $4", w.page(50, 0))
	assert.Len(t, w.args, 4)
}
