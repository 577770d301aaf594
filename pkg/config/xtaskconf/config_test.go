package xtaskconf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsched/pkg/sched/xinterval"
)

const yamlConfig = `
task:
  name: cleanup
  command: /usr/local/bin/cleanup
  args: ["--fast", "--quiet"]
  interval: 5m
  stall: 30s
  start_delay: 10s
  detached: true
relay:
  addr: localhost:6379
  prefix: "xsched:"
log:
  file: /var/log/xsched.log
  level: debug
`

const jsonConfig = `{
  "task": {
    "name": "report",
    "command": "/usr/bin/report",
    "cron": "@hourly"
  }
}`

// writeTemp 将配置内容写入临时文件并返回路径。
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml file", func(t *testing.T) {
		cfg, err := Load(writeTemp(t, "task.yaml", yamlConfig))
		require.NoError(t, err)

		assert.Equal(t, "cleanup", cfg.Task.Name)
		assert.Equal(t, "/usr/local/bin/cleanup", cfg.Task.Command)
		assert.Equal(t, []string{"--fast", "--quiet"}, cfg.Task.Args)
		assert.Equal(t, 5*time.Minute, cfg.Task.Interval)
		assert.Equal(t, 30*time.Second, cfg.Task.Stall)
		assert.Equal(t, 10*time.Second, cfg.Task.StartDelay)
		assert.True(t, cfg.Task.Detached)
		assert.Equal(t, "localhost:6379", cfg.Relay.Addr)
		assert.Equal(t, "xsched:", cfg.Relay.Prefix)
		assert.Equal(t, "/var/log/xsched.log", cfg.Log.File)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("json file", func(t *testing.T) {
		cfg, err := Load(writeTemp(t, "task.json", jsonConfig))
		require.NoError(t, err)

		assert.Equal(t, "report", cfg.Task.Name)
		assert.Equal(t, "@hourly", cfg.Task.Cron)
		assert.Zero(t, cfg.Task.Interval)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Load("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := Load("/etc/xsched/task.toml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeTemp(t, "bad.yaml", "task: [unclosed"))
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestLoadBytes(t *testing.T) {
	t.Run("invalid format", func(t *testing.T) {
		_, err := LoadBytes([]byte("{}"), Format("toml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("empty data fails validation", func(t *testing.T) {
		_, err := LoadBytes(nil, FormatYAML)
		assert.ErrorIs(t, err, ErrMissingCommand)
	})

	t.Run("valid json bytes", func(t *testing.T) {
		cfg, err := LoadBytes([]byte(jsonConfig), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "report", cfg.Task.Name)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Task: TaskConfig{
			Command:  "/bin/true",
			Interval: time.Minute,
		}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing command", func(c *Config) { c.Task.Command = "" }, ErrMissingCommand},
		{"missing schedule", func(c *Config) { c.Task.Interval = 0 }, ErrMissingSchedule},
		{"conflicting schedule", func(c *Config) { c.Task.Cron = "@hourly" }, ErrConflictingSchedule},
		{"negative interval", func(c *Config) { c.Task.Interval = -time.Second }, ErrInvalidSchedule},
		{"negative stall", func(c *Config) { c.Task.Stall = -time.Second }, ErrInvalidStall},
		{"negative start delay", func(c *Config) { c.Task.StartDelay = -time.Second }, ErrNegativeStartDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTaskConfig_BuildOptions(t *testing.T) {
	noop := xinterval.TaskFunc(func(ctx context.Context, done xinterval.Done) {
		done(nil)
	})

	t.Run("interval task", func(t *testing.T) {
		tc := TaskConfig{
			Name:     "demo",
			Command:  "/bin/true",
			Interval: time.Minute,
			Stall:    10 * time.Second,
			Detached: true,
		}

		s, err := xinterval.New(noop, tc.BuildOptions()...)
		require.NoError(t, err)
		assert.Equal(t, "demo", s.Name())
		assert.True(t, s.Detached())
	})

	t.Run("cron task", func(t *testing.T) {
		tc := TaskConfig{Command: "/bin/true", Cron: "@every 1m"}

		s, err := xinterval.New(noop, tc.BuildOptions()...)
		require.NoError(t, err)
		assert.False(t, s.Detached())
	})

	t.Run("invalid cron surfaces at construction", func(t *testing.T) {
		tc := TaskConfig{Command: "/bin/true", Cron: "not a cron"}

		_, err := xinterval.New(noop, tc.BuildOptions()...)
		assert.ErrorIs(t, err, xinterval.ErrInvalidInterval)
	})
}
