package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateIsDeterministic(t *testing.T) {
	a := NewAllocator(t.TempDir())

	first, err := a.Allocate("TestLogin", "gw1", Screenshot)
	require.NoError(t, err)
	second, err := a.Allocate("TestLogin", "gw1", Screenshot)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(a.Dir(), "screenshots", "TestLogin_gw1.png"), first)
	assert.Equal(t, 2, a.Counts()[Screenshot])

	info, err := os.Stat(filepath.Dir(first))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAllocateDistinctInputs(t *testing.T) {
	a := NewAllocator(t.TempDir())

	inputs := []struct {
		test, worker string
		kind         Kind
	}{
		{"TestLogin", "gw0", Screenshot},
		{"TestLogin", "gw1", Screenshot},
		{"TestLogout", "gw0", Screenshot},
		{"TestLogin", "gw0", PageSource},
		{"TestLogin", "gw0", Video},
		{"TestLogin/a_b", "gw0", Screenshot},
		{"TestLogin/a/b", "gw0", Screenshot},
		{"TestLogin_a_b", "gw0", Screenshot},
	}

	seen := map[string]bool{}
	for _, in := range inputs {
		path, err := a.Allocate(in.test, in.worker, in.kind)
		require.NoError(t, err)
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
	}
}

func TestAllocateTestWorkerBoundary(t *testing.T) {
	a := NewAllocator(t.TempDir())

	first, err := a.Path("a_b", "c", Screenshot)
	require.NoError(t, err)
	second, err := a.Path("a", "b_c", Screenshot)
	require.NoError(t, err)

	assert.Equal(t, "a_b_c.png", filepath.Base(first))
	assert.NotEqual(t, first, second)

	// The worker part never contains the separator
	base := strings.TrimSuffix(filepath.Base(second), ".png")
	worker := base[strings.LastIndex(base, "_")+1:]
	assert.True(t, strings.HasPrefix(worker, "b-c-"), worker)
}

func TestAllocateSequentialWorker(t *testing.T) {
	a := NewAllocator(t.TempDir())

	path, err := a.Path("TestSearch", "", Screenshot)
	require.NoError(t, err)
	assert.Equal(t, "TestSearch_sequential.png", filepath.Base(path))
}

func TestAllocateSanitizesSubtestNames(t *testing.T) {
	a := NewAllocator(t.TempDir())

	path, err := a.Path("TestCheckout/guest user", "gw0", Screenshot)
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "TestCheckout_guest_user-"), base)
	assert.NotContains(t, base, "/")
	assert.Equal(t, filepath.Join(a.Dir(), "screenshots"), filepath.Dir(path))
}

func TestAllocateErrors(t *testing.T) {
	a := NewAllocator(t.TempDir())

	_, err := a.Allocate("TestLogin", "gw0", Kind("trace"))
	assert.Error(t, err)

	_, err = a.Allocate("  ", "gw0", Screenshot)
	assert.Error(t, err)

	assert.Empty(t, a.Counts())
}
