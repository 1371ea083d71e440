// Package config loads runtime settings from the settings file and
// environment. Secrets (the Telegram credentials) come from the
// environment only, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all runtime settings for the farm.
type Config struct {
	// Target application.
	GroupURL string
	BotLink  string
	RefLink  string

	// Browser control API.
	ControlAPIBase string

	// Data files.
	AccountsFile     string
	AnswersFile      string
	CatalogFile      string // empty means use the built-in catalog
	CompletionFile   string
	RegistrationFile string
	ScheduleFile     string
	BalancesCSV      string

	// Session acquisition.
	ClosePollInterval time.Duration
	CloseWaitTimeout  time.Duration

	// Cohort pacing.
	CooldownMinHours       int
	CooldownMaxHours       int
	MaxConsecutiveFailures int

	// WatchAccount, when set, logs every lifecycle event of that one
	// account for debugging a single profile.
	WatchAccount string

	// Telegram summary push. Disabled when Token is empty.
	TelegramToken  string
	TelegramChatID string
}

// Load reads settings from the given ini file and the environment.
// A .env file next to the working directory is honored when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	section := file.Section("Settings")

	cfg := &Config{
		GroupURL: section.Key("GroupURL").MustString(""),
		BotLink:  section.Key("BotLink").MustString(""),
		RefLink:  section.Key("RefLink").MustString(""),

		ControlAPIBase: section.Key("ControlAPIBase").MustString("http://local.adspower.net:50325"),

		AccountsFile:     section.Key("AccountsFile").MustString("accounts.txt"),
		AnswersFile:      section.Key("AnswersFile").MustString("questions_answers.json"),
		CatalogFile:      section.Key("CatalogFile").MustString(""),
		CompletionFile:   section.Key("CompletionFile").MustString("completed_quests.txt"),
		RegistrationFile: section.Key("RegistrationFile").MustString("registered_wallets.txt"),
		ScheduleFile:     section.Key("ScheduleFile").MustString("schedule.json"),
		BalancesCSV:      section.Key("BalancesCSV").MustString("balances.csv"),

		ClosePollInterval: time.Duration(section.Key("ClosePollSeconds").MustInt(5)) * time.Second,
		CloseWaitTimeout:  time.Duration(section.Key("CloseWaitSeconds").MustInt(900)) * time.Second,

		CooldownMinHours:       section.Key("CooldownMinHours").MustInt(8),
		CooldownMaxHours:       section.Key("CooldownMaxHours").MustInt(14),
		MaxConsecutiveFailures: section.Key("MaxConsecutiveFailures").MustInt(3),

		WatchAccount: section.Key("WatchAccount").MustString(""),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GroupURL == "" {
		return fmt.Errorf("settings: GroupURL is required")
	}
	if c.BotLink == "" {
		return fmt.Errorf("settings: BotLink is required")
	}
	if c.ControlAPIBase == "" {
		return fmt.Errorf("settings: ControlAPIBase is required")
	}
	if c.CooldownMinHours <= 0 || c.CooldownMaxHours < c.CooldownMinHours {
		return fmt.Errorf("settings: cooldown window %d..%d hours is invalid",
			c.CooldownMinHours, c.CooldownMaxHours)
	}
	if c.ClosePollInterval <= 0 || c.CloseWaitTimeout < c.ClosePollInterval {
		return fmt.Errorf("settings: close wait %v with poll %v is invalid",
			c.CloseWaitTimeout, c.ClosePollInterval)
	}
	if c.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("settings: MaxConsecutiveFailures must be positive")
	}
	return nil
}
