package report

// ============================================================================
// Report 測試檔案
// 職責：驗證報告內容、原子性寫入、載入與版本驗證
// ============================================================================

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/roadcrew/internal/machine"
	"github.com/ChuLiYu/roadcrew/internal/world"
	"github.com/ChuLiYu/roadcrew/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestWorld builds a flat 6x6 grid with a hauler and a digger
func newTestWorld(t *testing.T) (*world.Grid, *machine.Fleet) {
	t.Helper()
	g := world.NewGrid(world.Options{Width: 6, Height: 6})
	g.Place(0, 0, types.Depot)
	f := machine.NewFleet(g, rand.New(rand.NewSource(1)))
	_, err := f.Spawn(types.Hauler, 2, 2)
	require.NoError(t, err)
	_, err = f.Spawn(types.Digger, 4, 1)
	require.NoError(t, err)
	g.Jobs().Add(types.JobPave, 3, 3, types.NoParam)
	return g, f
}

// ============================================================================
// 基礎功能測試
// ============================================================================

func TestBuild(t *testing.T) {
	g, f := newTestWorld(t)
	r := Build(g, f, Meta{Session: "s-1", Seed: 7, Ticks: 42})

	assert.Equal(t, SchemaVersion, r.SchemaVer)
	assert.Equal(t, "s-1", r.Session)
	assert.Equal(t, int64(7), r.Seed)
	assert.Equal(t, uint64(42), r.Ticks)
	assert.Equal(t, 6, r.Width)
	assert.Equal(t, 35, r.Count(types.Grass))
	assert.Equal(t, 1, r.Count(types.Depot))
	assert.Equal(t, 0, r.Count(types.Road))
	assert.Equal(t, map[int]int{0: 49}, r.Heights)

	require.Len(t, r.Pending, 1)
	assert.Equal(t, JobEntry{Kind: "PAVE", I: 3, J: 3, Param: types.NoParam, Seq: 1}, r.Pending[0])

	require.Len(t, r.Machines, 2)
	assert.Equal(t, "Hauler", r.Machines[0].Archetype)
	assert.Equal(t, 2, r.Machines[0].I)
	assert.Equal(t, "empty", r.Machines[0].Cargo)
	assert.Empty(t, r.Machines[0].Job)
	assert.Equal(t, "Digger", r.Machines[1].Archetype)
	assert.Less(t, r.Machines[0].ID, r.Machines[1].ID)
}

func TestBuildShowsHeldJob(t *testing.T) {
	g, f := newTestWorld(t)
	f.Tick() // the hauler claims the PAVE job

	r := Build(g, f, Meta{})
	assert.Empty(t, r.Pending)
	assert.Equal(t, "PAVE (3,3)", r.Machines[0].Job)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter("report.json")
	assert.Equal(t, "report.json", w.Path())
	assert.False(t, w.Exists())
}

func TestWriteAndLoad(t *testing.T) {
	g, f := newTestWorld(t)
	path := filepath.Join(t.TempDir(), "out", "report.json")
	w := NewWriter(path)

	original := Build(g, f, Meta{Session: "abc", Seed: 3, Ticks: 100})
	require.NoError(t, w.Write(original))
	assert.True(t, w.Exists())

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, original.Session, loaded.Session)
	assert.Equal(t, original.Ticks, loaded.Ticks)
	assert.Equal(t, original.Variants, loaded.Variants)
	assert.Equal(t, original.Heights, loaded.Heights)
	assert.Equal(t, original.Pending, loaded.Pending)
	assert.Equal(t, original.Machines, loaded.Machines)
	assert.True(t, original.GeneratedAt.Equal(loaded.GeneratedAt))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not remain")
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w := NewWriter(path)

	require.NoError(t, w.Write(Report{Ticks: 1}))
	require.NoError(t, w.Write(Report{Ticks: 2}))

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Ticks)
	assert.NotNil(t, loaded.Variants)
}

// ============================================================================
// 錯誤處理測試
// ============================================================================

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		write   bool
		wantErr error
	}{
		{name: "missing", write: false, wantErr: ErrReportNotFound},
		{name: "corrupted", content: "{not json", write: true, wantErr: ErrCorruptedReport},
		{name: "wrong version", content: `{"schema_version": 99}`, write: true, wantErr: ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report.json")
			if tt.write {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			}
			_, err := NewWriter(path).Load()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
