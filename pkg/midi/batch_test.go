package midi

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDecodeAll(t *testing.T) {
	var tb trackBuilder
	tb.meta(0, metaTempo, tempo500000...)
	tb.event(0, 0x90, 60, 100)
	tb.event(480, 0x80, 60, 0)
	tb.endOfTrack()
	valid := smfFile(0, 1, 480, mtrk(tb.buf))

	dir := t.TempDir()
	paths := []string{
		writeFixture(t, dir, "a.mid", valid),
		writeFixture(t, dir, "b.mid", []byte("not midi at all")),
		writeFixture(t, dir, "c.mid", valid),
		filepath.Join(dir, "missing.mid"),
	}

	results := DecodeAll(context.Background(), paths, 2, Options{})
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}

	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].File)
	assert.Len(t, results[0].File.ResolvedNotes(), 1)

	assert.ErrorIs(t, results[1].Err, ErrNotMidiFile)
	assert.Nil(t, results[1].File)

	require.NoError(t, results[2].Err)

	assert.Error(t, results[3].Err)
	assert.True(t, os.IsNotExist(results[3].Err))
}

func TestDecodeAllDefaultWorkers(t *testing.T) {
	results := DecodeAll(context.Background(), nil, 0, Options{})
	assert.Empty(t, results)
}

func TestDecodeAllCanceled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFixture(t, dir, "a.mid", smfFile(0, 0, 480)),
		writeFixture(t, dir, "b.mid", smfFile(0, 0, 480)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := DecodeAll(ctx, paths, 1, Options{})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Nil(t, r.File)
	}
}
