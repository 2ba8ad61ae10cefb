package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spits-runtime/spits/pkg/types"
)

func TestLoadMergesFileAndDir(t *testing.T) {
	dir := t.TempDir()

	nodesTxt := "node 10.0.0.1:9000\n# a comment\n\nnode 10.0.0.2:9001\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, NodesFile), []byte(nodesTxt), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, NodesDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, NodesDir, "worker-3"), []byte("node 10.0.0.3:9002\n"), 0o644))

	nodes, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	found, ok := nodes["worker-3"]
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3", found.Host)
	assert.Equal(t, 9002, found.Port)
}

func TestLoadToleratesMissingSources(t *testing.T) {
	dir := t.TempDir()
	nodes, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := "node badline\nnode 10.0.0.1:9000\nproxy p1 tcp:host:1\nbogus thing\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, NodesFile), []byte(content), 0o644))

	nodes, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestAddNodeThenListThenRemove(t *testing.T) {
	dir := t.TempDir()

	ep := types.Endpoint{Name: "w1", Host: "127.0.0.1", Port: 7000}
	require.NoError(t, AddNode(dir, ep))

	nodes, err := ListNodes(dir)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "127.0.0.1", nodes[0].Host)
	assert.Equal(t, 7000, nodes[0].Port)

	require.NoError(t, RemoveNode(dir, "w1"))
	nodes, err = ListNodes(dir)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRemoveNodeMissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RemoveNode(dir, "does-not-exist"))
}
