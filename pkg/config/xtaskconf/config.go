package xtaskconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/omeyang/xsched/pkg/sched/xinterval"
)

// Format 配置格式。
type Format string

const (
	// FormatYAML YAML 格式。
	FormatYAML Format = "yaml"
	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// TaskConfig 单个调度任务的配置。
type TaskConfig struct {
	// Name 任务名，用作日志与观测标签。
	Name string `koanf:"name"`
	// Command 要执行的命令，xschedctl 场景下必填。
	Command string `koanf:"command"`
	// Args 命令参数。
	Args []string `koanf:"args"`
	// Interval 固定间隔，与 Cron 互斥。
	Interval time.Duration `koanf:"interval"`
	// Cron cron 表达式，与 Interval 互斥。
	Cron string `koanf:"cron"`
	// Stall 失速阈值，0 表示不启用失速监控。
	Stall time.Duration `koanf:"stall"`
	// StartDelay 首次执行的延迟。
	StartDelay time.Duration `koanf:"start_delay"`
	// Immediate 为 true 时忽略 StartDelay，立即发起首次执行。
	Immediate bool `koanf:"immediate"`
	// Detached 分离模式：宿主退出时不等待调度结束。
	Detached bool `koanf:"detached"`
}

// RelayConfig 事件转发配置（见 xrelay 包）。Addr 为空表示不启用。
type RelayConfig struct {
	// Addr Redis 地址，如 localhost:6379。
	Addr string `koanf:"addr"`
	// Prefix 发布频道前缀。
	Prefix string `koanf:"prefix"`
}

// LogConfig 日志输出配置。
type LogConfig struct {
	// File 日志文件路径，空表示输出到 stderr。
	File string `koanf:"file"`
	// Level 日志级别：debug/info/warn/error。
	Level string `koanf:"level"`
}

// Config 完整的配置文件内容。
type Config struct {
	Task  TaskConfig  `koanf:"task"`
	Relay RelayConfig `koanf:"relay"`
	Log   LogConfig   `koanf:"log"`
}

// Load 从文件加载配置。根据扩展名自动检测格式（.yaml/.yml 或 .json），
// 加载后执行 [Config.Validate] 校验。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	return LoadBytes(data, format)
}

// LoadBytes 从字节数据加载配置。需要显式指定格式，
// 适用于 K8s ConfigMap 等场景。空数据产生零值配置（校验会拒绝它）。
func LoadBytes(data []byte, format Format) (*Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := loadData(k, data, format); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置。
func (c *Config) Validate() error {
	t := &c.Task

	if t.Command == "" {
		return ErrMissingCommand
	}

	switch {
	case t.Interval == 0 && t.Cron == "":
		return ErrMissingSchedule
	case t.Interval != 0 && t.Cron != "":
		return ErrConflictingSchedule
	case t.Interval < 0:
		return ErrInvalidSchedule
	}

	if t.Stall < 0 {
		return ErrInvalidStall
	}
	if t.StartDelay < 0 {
		return ErrNegativeStartDelay
	}
	return nil
}

// BuildOptions 将任务配置映射为 xinterval 的调度选项。
// 调用方负责先通过 [Config.Validate] 校验；非法的 cron 表达式
// 由 xinterval.New 在构造时报错。
func (t *TaskConfig) BuildOptions() []xinterval.Option {
	opts := []xinterval.Option{}

	if t.Name != "" {
		opts = append(opts, xinterval.WithName(t.Name))
	}
	if t.Cron != "" {
		opts = append(opts, xinterval.WithCronSpec(t.Cron))
	} else {
		opts = append(opts, xinterval.WithInterval(t.Interval))
	}
	if t.Stall > 0 {
		opts = append(opts, xinterval.WithStallThreshold(t.Stall))
	}
	if t.Detached {
		opts = append(opts, xinterval.WithDetached())
	}

	return opts
}

// detectFormat 根据文件扩展名检测配置格式。
func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

// isValidFormat 检查格式是否有效。
func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// loadData 加载数据到 koanf 实例。
func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}

	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
