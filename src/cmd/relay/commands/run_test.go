package commands

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "relay-cli")
	require.NoError(t, err)

	toml := `name = "me"
buffer-limit = 5
timeout = "250ms"
listen = "127.0.0.1:9000"
`
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "relay.toml"), []byte(toml), 0644))

	cmd := NewRunCmd()
	require.NoError(t, cmd.Flags().Set("datadir", dir))
	require.NoError(t, cmd.Flags().Set("listen", "127.0.0.1:9001"))

	require.NoError(t, loadConfig(cmd, nil))

	assert.Equal(t, dir, _config.DataDir)
	assert.Equal(t, "me", _config.Name)
	assert.Equal(t, 5, _config.BufferLimit)
	assert.Equal(t, 250*time.Millisecond, _config.TCPTimeout)

	// flags take precedence over the file
	assert.Equal(t, "127.0.0.1:9001", _config.BindAddr)

	assert.Equal(t, filepath.Join(dir, "badger_db"), _config.DatabaseDir)
}
