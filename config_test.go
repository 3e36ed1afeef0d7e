package arcseq_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpyw/arcseq"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    func(c *arcseq.Config)
		wantErr string
	}{
		{
			name: "empty keeps defaults",
			data: "",
			want: func(*arcseq.Config) {},
		},
		{
			name: "override",
			data: "enable_loop_arc: false\nmax_iterations: 4\n",
			want: func(c *arcseq.Config) {
				c.EnableLoopARC = false
				c.MaxIterations = 4
			},
		},
		{
			name: "pool funcs replace the defaults",
			data: "autorelease_pool_funcs: [pool_push]\n",
			want: func(c *arcseq.Config) {
				c.AutoreleasePoolFuncs = []string{"pool_push"}
			},
		},
		{
			name:    "non-positive iterations",
			data:    "max_iterations: 0\n",
			wantErr: "max_iterations must be positive",
		},
		{
			name:    "malformed yaml",
			data:    "max_iterations: [\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := arcseq.ParseConfig([]byte(tt.data))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			want := arcseq.DefaultConfig()
			tt.want(&want)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcseq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("freeze_epilogue_releases: false\n"), 0o600))

	got, err := arcseq.LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, got.FreezeEpilogueReleases)
	assert.True(t, got.EnableLoopARC)

	_, err = arcseq.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
