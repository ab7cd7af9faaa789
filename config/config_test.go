package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/dtchat/transport"
)

const sampleYAML = `
db:
  type: memory
file_reception_dir: /tmp/dtchat
contact_plan: plans/cp.ion
local_peer: p1
peers:
  - uuid: p1
    name: alice
    color: "#ff0000"
    endpoints: ["tcp 127.0.0.1:7000", "bp ipn:3.1"]
  - uuid: p2
    name: bob
    color: "#00ff00"
    endpoints: ["udp 127.0.0.1:7001"]
rooms:
  - uuid: r1
    name: ops
    participants:
      - peer: p1
        endpoint: "tcp 127.0.0.1:7000"
      - peer: p2
        endpoint: "udp 127.0.0.1:7001"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dtchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.DB.Type)
	assert.Equal(t, "/tmp/dtchat", cfg.FileReceptionDir)
	assert.Equal(t, "plans/cp.ion", cfg.ContactPlan)
	assert.Len(t, cfg.Peers, 2)
	assert.Len(t, cfg.Rooms, 1)
}

func TestLoadDefaultsReceptionDir(t *testing.T) {
	cfg, err := Load(writeConfig(t, "local_peer: p1\npeers: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "./", cfg.FileReceptionDir)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "peers: [unclosed"))
		assert.Error(t, err)
	})
}

func TestLocalPeerUUID(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	t.Run("config field", func(t *testing.T) {
		uuid, err := cfg.LocalPeerUUID()
		require.NoError(t, err)
		assert.Equal(t, "p1", uuid)
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvPeerUUID, "p2")
		uuid, err := cfg.LocalPeerUUID()
		require.NoError(t, err)
		assert.Equal(t, "p2", uuid)
	})

	t.Run("unset anywhere", func(t *testing.T) {
		bare := &Config{}
		_, err := bare.LocalPeerUUID()
		assert.ErrorIs(t, err, ErrLocalPeerUnset)
	})
}

func TestBuildStore(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	db, err := cfg.BuildStore()
	require.NoError(t, err)

	local := db.LocalPeer()
	assert.Equal(t, "p1", local.UUID)
	bp, ok := local.EndpointOfKind(transport.KindBP)
	require.True(t, ok)
	assert.Equal(t, "ipn:3.1", bp.Address)

	assert.Contains(t, db.OtherPeers(), "p2")
	require.Contains(t, db.Rooms(), "r1")
	assert.True(t, db.Rooms()["r1"].HasParticipant("p2"))
}

func TestBuildStoreSelectsLocalByEnv(t *testing.T) {
	t.Setenv(EnvPeerUUID, "p2")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	db, err := cfg.BuildStore()
	require.NoError(t, err)
	assert.Equal(t, "p2", db.LocalPeer().UUID)
	assert.Contains(t, db.OtherPeers(), "p1")
}

func TestBuildStoreErrors(t *testing.T) {
	t.Run("local peer missing from list", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "local_peer: ghost\npeers:\n  - uuid: p1\n    endpoints: []\n"))
		require.NoError(t, err)
		_, err = cfg.BuildStore()
		assert.Error(t, err)
	})

	t.Run("bad endpoint string", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "local_peer: p1\npeers:\n  - uuid: p1\n    endpoints: [\"wat\"]\n"))
		require.NoError(t, err)
		_, err = cfg.BuildStore()
		assert.Error(t, err)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "db:\n  type: sqlite\nlocal_peer: p1\npeers:\n  - uuid: p1\n    endpoints: []\n"))
		require.NoError(t, err)
		_, err = cfg.BuildStore()
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "db:\n  type: etcd\nlocal_peer: p1\npeers:\n  - uuid: p1\n    endpoints: []\n"))
		require.NoError(t, err)
		_, err = cfg.BuildStore()
		assert.Error(t, err)
	})
}

func TestLoadDefaultUsesEnvPath(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "p1", cfg.LocalPeer)
}
