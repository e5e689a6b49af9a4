package collector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteEmitter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "translations.db")

	em, err := OpenSQLiteEmitter(ctx, path)
	require.NoError(t, err)

	c := newCollector(t, em, WithFirstLine(1))
	c.Write(2, "zwei")
	c.Write(1, "eins")
	c.Write(3, "drei")

	lines, err := em.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eins", "zwei", "drei"}, lines)
	require.NoError(t, c.Close(ctx))
}

func TestSQLiteEmitterUpsert(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "translations.db")

	first, err := OpenSQLiteEmitter(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Emit(0, "draft"))
	require.NoError(t, first.Close())

	second, err := OpenSQLiteEmitter(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Emit(0, "final"))
	require.NoError(t, second.Emit(1, "next"))

	lines, err := second.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"final", "next"}, lines)
}
