package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8765", cfg.WSAddr())
	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL())
	assert.Equal(t, 50, cfg.MaxTime)
	assert.Equal(t, 3, cfg.StayAtGoal)
	assert.InDelta(t, 0.3, cfg.Speed, 1e-9)
	assert.InDelta(t, 10.0, cfg.ArrivalTimeoutPerHop, 1e-9)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.JournalPath)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AGV_MQTT_HOST", "broker.local")
	t.Setenv("AGV_WS_PORT", "9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker.local:1883", cfg.BrokerURL())
	assert.Equal(t, 9000, cfg.WSPort)
}

func TestLoad_FileAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug","speed":0.5}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.5, cfg.Speed, 1e-9)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"log_level":"shouty"}`), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"nodes": [{"id":1,"x":0,"y":0},{"id":2,"x":1,"y":0}],
		"edges": [{"from":1,"to":2,"cost":1},{"from":2,"to":1,"cost":1}]
	}`), 0o644))

	g, err := LoadMap(path)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
	require.Len(t, g.Neighbors(1), 1)
	assert.Equal(t, core.NodeID(2), g.Neighbors(1)[0].To)

	bad := filepath.Join(dir, "bad_map.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{
		"nodes": [{"id":1,"x":0,"y":0}],
		"edges": [{"from":1,"to":99,"cost":1}]
	}`), 0o644))
	_, err = LoadMap(bad)
	assert.Error(t, err, "edge to a missing node must fail")
}

func TestLoadRobotsAndShelves(t *testing.T) {
	dir := t.TempDir()
	robots := filepath.Join(dir, "robots.json")
	require.NoError(t, os.WriteFile(robots, []byte(`{
		"robots": {"2": {"name":"agv-2","home_node":3}, "1": {"name":"agv-1","home_node":1}}
	}`), 0o644))

	specs, err := LoadRobots(robots)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, core.RobotID(1), specs[0].ID)
	assert.Equal(t, "agv-1", specs[0].Name)
	assert.Equal(t, core.NodeID(3), specs[1].Home)

	shelves := filepath.Join(dir, "shelves.json")
	require.NoError(t, os.WriteFile(shelves, []byte(`{
		"shelves": {"9": {"label":"S9","items":["A","B"]}, "8": {"label":"S8","items":["C"]}},
		"workstations": {"50": {}, "51": {}}
	}`), 0o644))

	shelfSpecs, stations, err := LoadShelves(shelves)
	require.NoError(t, err)
	require.Len(t, shelfSpecs, 2)
	assert.Equal(t, core.NodeID(8), shelfSpecs[0].Node)
	assert.Equal(t, []string{"A", "B"}, shelfSpecs[1].Items)
	assert.Equal(t, []core.NodeID{50, 51}, stations)
}
