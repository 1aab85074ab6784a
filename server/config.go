package server

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Tuning 速度与氮气的可调参数（可通过 /admin/config 热更新）
type Tuning struct {
	SpeedNormal         float64 `json:"speedNormal" jsonschema:"description=baseline delay per step in ms,minimum=1"`
	SpeedBorder         float64 `json:"speedBorder" jsonschema:"description=max speed-up near the border in ms"`
	SpeedNitro          float64 `json:"speedNitro" jsonschema:"description=max speed-up from a full nitro tank in ms"`
	NitroMillis         int     `json:"nitroMillis" jsonschema:"description=nitro duration in ms,minimum=0"`
	NitroMinTank        int     `json:"nitroMinTank" jsonschema:"description=tank level at or below which nitro is refused,minimum=0,maximum=100"`
	NitroRegen          int     `json:"nitroRegen" jsonschema:"description=tank regained per accepted step,minimum=0,maximum=100"`
	NitroCooldownFactor float64 `json:"nitroCooldownFactor" jsonschema:"description=per-step speed multiplier while nitro is active"`
	BorderFactor        float64 `json:"borderFactor" jsonschema:"description=per-step speed multiplier inside the border margin"`
	RelaxFactor         float64 `json:"relaxFactor" jsonschema:"description=per-step speed multiplier outside the border margin"`
	BorderMargin        float64 `json:"borderMargin" jsonschema:"description=fraction of the board treated as border (0 to 0.5 exclusive)"`
	CountdownSeconds    int     `json:"countdownSeconds" jsonschema:"minimum=0"`
	IdleGraceMillis     int     `json:"idleGraceMillis" jsonschema:"description=idle time before crashed players are disconnected,minimum=0"`
}

// DefaultTuning 默认参数
func DefaultTuning() Tuning {
	return Tuning{
		SpeedNormal:         100,
		SpeedBorder:         40,
		SpeedNitro:          60,
		NitroMillis:         3000,
		NitroMinTank:        25,
		NitroRegen:          1,
		NitroCooldownFactor: 1.01,
		BorderFactor:        0.9,
		RelaxFactor:         1.1,
		BorderMargin:        0.1,
		CountdownSeconds:    5,
		IdleGraceMillis:     3000,
	}
}

// Validate 汇总所有不合法的字段
func (t Tuning) Validate() error {
	var err error
	if t.SpeedNormal < 1 {
		err = multierr.Append(err, fmt.Errorf("speedNormal must be >= 1, got %v", t.SpeedNormal))
	}
	if t.SpeedBorder < 0 || t.SpeedBorder >= t.SpeedNormal {
		err = multierr.Append(err, fmt.Errorf("speedBorder must be in [0, speedNormal), got %v", t.SpeedBorder))
	}
	if t.SpeedNitro < 0 || t.SpeedNitro >= t.SpeedNormal {
		err = multierr.Append(err, fmt.Errorf("speedNitro must be in [0, speedNormal), got %v", t.SpeedNitro))
	}
	if t.NitroMillis < 0 {
		err = multierr.Append(err, fmt.Errorf("nitroMillis must be >= 0, got %d", t.NitroMillis))
	}
	if t.NitroMinTank < 0 || t.NitroMinTank > 100 {
		err = multierr.Append(err, fmt.Errorf("nitroMinTank must be in [0, 100], got %d", t.NitroMinTank))
	}
	if t.NitroRegen < 0 || t.NitroRegen > 100 {
		err = multierr.Append(err, fmt.Errorf("nitroRegen must be in [0, 100], got %d", t.NitroRegen))
	}
	if t.NitroCooldownFactor < 1 {
		err = multierr.Append(err, fmt.Errorf("nitroCooldownFactor must be >= 1, got %v", t.NitroCooldownFactor))
	}
	if t.BorderFactor <= 0 || t.BorderFactor >= 1 {
		err = multierr.Append(err, fmt.Errorf("borderFactor must be in (0, 1), got %v", t.BorderFactor))
	}
	if t.RelaxFactor <= 1 {
		err = multierr.Append(err, fmt.Errorf("relaxFactor must be > 1, got %v", t.RelaxFactor))
	}
	if t.BorderMargin <= 0 || t.BorderMargin >= 0.5 {
		err = multierr.Append(err, fmt.Errorf("borderMargin must be in (0, 0.5), got %v", t.BorderMargin))
	}
	if t.CountdownSeconds < 0 || t.CountdownSeconds > 0x7fff {
		err = multierr.Append(err, fmt.Errorf("countdownSeconds out of range: %d", t.CountdownSeconds))
	}
	if t.IdleGraceMillis < 0 {
		err = multierr.Append(err, fmt.Errorf("idleGraceMillis must be >= 0, got %d", t.IdleGraceMillis))
	}
	return err
}

// Config 进程级配置
type Config struct {
	Addr         string        // TCP 监听地址
	WSAddr       string        // WebSocket 监听地址，为空则不开启
	AdminAddr    string        // 管理与监控接口，为空则不开启
	Players      int           // 开局所需人数
	TickInterval time.Duration // 无 I/O 时 Tick 的最长间隔
	Log          LogConfig
	Tuning       Tuning
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Addr:         ":9158",
		Players:      2,
		TickInterval: 300 * time.Millisecond,
		Log:          LogConfig{Level: "info", Console: true},
		Tuning:       DefaultTuning(),
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("listen address is required"))
	}
	if c.Players < 1 {
		err = multierr.Append(err, fmt.Errorf("player count must be >= 1, got %d", c.Players))
	}
	if c.TickInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	return multierr.Append(err, c.Tuning.Validate())
}

// LoadConfig 读取可选的 .env 文件与环境变量作为默认值，再由命令行参数覆盖
func LoadConfig(args []string, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	var envErr error
	cfg.Addr = envString("TRON_ADDR", cfg.Addr)
	cfg.WSAddr = envString("TRON_WS_ADDR", cfg.WSAddr)
	cfg.AdminAddr = envString("TRON_ADMIN_ADDR", cfg.AdminAddr)
	cfg.Log.File = envString("TRON_LOG_FILE", cfg.Log.File)
	cfg.Log.Level = envString("TRON_LOG_LEVEL", cfg.Log.Level)
	cfg.Players, envErr = envInt("TRON_PLAYERS", cfg.Players, envErr)
	cfg.TickInterval, envErr = envDuration("TRON_TICK", cfg.TickInterval, envErr)
	cfg.Tuning.CountdownSeconds, envErr = envInt("TRON_COUNTDOWN", cfg.Tuning.CountdownSeconds, envErr)
	cfg.Tuning.SpeedNormal, envErr = envFloat("TRON_SPEED_NORMAL", cfg.Tuning.SpeedNormal, envErr)
	if envErr != nil {
		return Config{}, envErr
	}

	flags := flag.NewFlagSet("lightcycle", flag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP listen address, e.g. :9158")
	flags.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket listen address (empty disables)")
	flags.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin/metrics HTTP address (empty disables)")
	flags.IntVar(&cfg.Players, "players", cfg.Players, "number of players required to start a round")
	flags.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "maximum interval between engine ticks")
	flags.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "rotating log file path (empty disables)")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: debug, info, warn, error")
	flags.BoolVar(&cfg.Log.Console, "log-console", cfg.Log.Console, "also log to stderr")
	flags.IntVar(&cfg.Tuning.CountdownSeconds, "countdown", cfg.Tuning.CountdownSeconds, "countdown before a round starts, in seconds")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	// 兼容原版用法：位置参数即人数
	if flags.NArg() > 0 {
		n, err := strconv.Atoi(flags.Arg(0))
		if err != nil {
			return Config{}, fmt.Errorf("player count %q: %w", flags.Arg(0), err)
		}
		cfg.Players = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int, err error) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, err
	}
	n, perr := strconv.Atoi(v)
	if perr != nil {
		return def, multierr.Append(err, fmt.Errorf("%s: %w", key, perr))
	}
	return n, err
}

func envFloat(key string, def float64, err error) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, err
	}
	f, perr := strconv.ParseFloat(v, 64)
	if perr != nil {
		return def, multierr.Append(err, fmt.Errorf("%s: %w", key, perr))
	}
	return f, err
}

func envDuration(key string, def time.Duration, err error) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, err
	}
	d, perr := time.ParseDuration(v)
	if perr != nil {
		return def, multierr.Append(err, fmt.Errorf("%s: %w", key, perr))
	}
	return d, err
}
