package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/validation"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrFileNotFound = errors.New("file not found")

// Config contains all application configuration settings
type Config struct {
	LogDir             string  `json:"LOG_DIR" koanf:"LOG_DIR" validate:"required"`
	PollInterval       int     `json:"POLL_INTERVAL_SECONDS" koanf:"POLL_INTERVAL_SECONDS" validate:"required,gt=0"`
	TargetStep         int     `json:"TARGET_STEP" koanf:"TARGET_STEP" validate:"required,gt=0"`
	MonitorRunPatterns string  `json:"MONITOR_RUN_PATTERNS" koanf:"MONITOR_RUN_PATTERNS" validate:"required"`
	MonitorScanLimit   int     `json:"MONITOR_SCAN_LIMIT" koanf:"MONITOR_SCAN_LIMIT" validate:"required,gt=0"`
	TargetValLoss      float64 `json:"TARGET_VAL_LOSS" koanf:"TARGET_VAL_LOSS" validate:"gt=0"`

	NprocPerNode      int    `json:"NPROC_PER_NODE" koanf:"NPROC_PER_NODE" validate:"required,gt=0"`
	LaunchCommand     string `json:"LAUNCH_COMMAND" koanf:"LAUNCH_COMMAND" validate:"required"`
	TrainScript       string `json:"TRAIN_SCRIPT" koanf:"TRAIN_SCRIPT" validate:"required"`
	SweepFile         string `json:"SWEEP_FILE" koanf:"SWEEP_FILE"`
	LibraryPathPrefix string `json:"LIBRARY_PATH_PREFIX" koanf:"LIBRARY_PATH_PREFIX"`
	LedgerPath        string `json:"LEDGER_PATH" koanf:"LEDGER_PATH"`

	LogLevel string `json:"LOG_LEVEL" koanf:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error"`
	LogFile  string `json:"LOG_FILE" koanf:"LOG_FILE"`

	TelegramBotToken string `json:"TELEGRAM_BOT_TOKEN" koanf:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `json:"TELEGRAM_CHAT_ID" koanf:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL   string `json:"TELEGRAM_API_URL" koanf:"TELEGRAM_API_URL" validate:"omitempty,url"`
	SlackWebhookURL  string `json:"SLACK_WEBHOOK_URL" koanf:"SLACK_WEBHOOK_URL" validate:"omitempty,url"`
	MessageChannels  string `json:"MESSAGE_CHANNELS" koanf:"MESSAGE_CHANNELS" validate:"omitempty,oneof=NONE TELEGRAM SLACK BOTH none telegram slack both"`
}

// Defaults returns the configuration used for keys that no source sets.
func Defaults() Config {
	return Config{
		LogDir:             "logs",
		PollInterval:       30,
		TargetStep:         1600,
		MonitorRunPatterns: "baseline_std_0,spectral_lr_0,spectral_lr_1",
		MonitorScanLimit:   10,
		TargetValLoss:      3.28,
		NprocPerNode:       8,
		LaunchCommand:      "torchrun",
		TrainScript:        "train_gpt.py",
		SweepFile:          "sweep.yaml",
		LibraryPathPrefix:  "/opt/conda/lib/python3.11/site-packages/nvidia/cusparselt/lib",
		LogLevel:           "info",
		TelegramAPIURL:     "https://api.telegram.org",
		MessageChannels:    "NONE",
	}
}

// PollEvery is the monitor polling interval as a duration.
func (c Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// RunPatterns splits MONITOR_RUN_PATTERNS on commas, dropping empty entries.
func (c Config) RunPatterns() []string {
	var out []string
	for _, p := range strings.Split(c.MonitorRunPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parserFor(configFile string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".json":
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

func load(configFile string) (Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
			log.Warn().Err(err).Str("file", configFile).Msg("unable to load config file")
		} else {
			log.Info().Str("file", configFile).Msg("loaded configuration from file")
		}
	}

	// Load from environment variables (higher priority)
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error loading env")
	}

	config := Defaults()

	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error unmarshalling config")
	}

	if err := validation.Validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error validating config")
	}
	return config, nil
}

func Load(configFile string) Config {
	config, err := load(configFile)
	if err != nil {
		log.Fatal().Err(err).Caller().Msg("unable to load configuration")
	}
	return config
}

func SearchUpwardsForFile(filename string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		file := filepath.Join(wd, filename)
		if _, err := os.Stat(file); err == nil {
			return file, nil
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			return "", errors.Wrap(ErrFileNotFound, filename)
		}
		wd = parent
	}
}

func LoadDotEnv(fileName string) {
	file, err := SearchUpwardsForFile(fileName)
	if err != nil {
		log.Debug().Err(err).Msgf("no %s file", fileName)
		return
	}

	if err := godotenv.Load(file); err != nil {
		log.Fatal().Err(err).Msg("invalid .env file")
	}

	log.Info().Msgf("loaded environment variables from %s", file)
}

// LoadConfig is the main entry point for configuration loading
func LoadConfig(envFile string, configFiles ...string) Config {
	if envFile != "" {
		LoadDotEnv(envFile)
	}

	for _, configFile := range configFiles {
		foundFile, err := SearchUpwardsForFile(configFile)
		if err == nil {
			return Load(foundFile)
		}
	}

	// If no config file found, load from environment only
	return Load("")
}
