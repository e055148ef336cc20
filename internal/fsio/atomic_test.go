package fsio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteYAML_RoundTripAndBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")

	require.NoError(t, WriteYAML(path, map[string]string{"version": "1"}))
	require.NoError(t, WriteYAML(path, map[string]string{"version": "2"}))

	var cur, bak map[string]string
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(content, &cur))
	assert.Equal(t, "2", cur["version"])

	content, err = os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(content, &bak))
	assert.Equal(t, "1", bak["version"])
}

func TestAtomicWrite_RejectsInvalidContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolio.json")

	err := AtomicWrite(path, []byte(`{"cash": `), ValidateJSON)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorecards.json")
	require.NoError(t, WriteJSON(path, map[string]float64{"adjustment": 1.05}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"adjustment": 1.05}`, string(content))
}

func TestCreateExclusive_SingleShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk-report.md")

	require.NoError(t, CreateExclusive(path, []byte("first")))
	err := CreateExclusive(path, []byte("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

func TestCreateExclusive_ConcurrentWritersOneWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "market-report.md")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if CreateExclusive(path, []byte("content")) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
