package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeSettings(t, `
[Settings]
GroupURL = https://t.me/example_group
BotLink = https://t.me/example_bot
RefLink = https://t.me/example_bot?start=ref123
ControlAPIBase = http://127.0.0.1:50325
AccountsFile = my_accounts.txt
CooldownMinHours = 6
CooldownMaxHours = 12
MaxConsecutiveFailures = 5
ClosePollSeconds = 2
CloseWaitSeconds = 60
WatchAccount = 101
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token123")
	t.Setenv("TELEGRAM_CHAT_ID", "999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GroupURL != "https://t.me/example_group" {
		t.Errorf("GroupURL = %q", cfg.GroupURL)
	}
	if cfg.ControlAPIBase != "http://127.0.0.1:50325" {
		t.Errorf("ControlAPIBase = %q", cfg.ControlAPIBase)
	}
	if cfg.AccountsFile != "my_accounts.txt" {
		t.Errorf("AccountsFile = %q", cfg.AccountsFile)
	}
	if cfg.CooldownMinHours != 6 || cfg.CooldownMaxHours != 12 {
		t.Errorf("cooldown = %d..%d", cfg.CooldownMinHours, cfg.CooldownMaxHours)
	}
	if cfg.MaxConsecutiveFailures != 5 {
		t.Errorf("MaxConsecutiveFailures = %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.ClosePollInterval != 2*time.Second || cfg.CloseWaitTimeout != 60*time.Second {
		t.Errorf("close wait = %v/%v", cfg.ClosePollInterval, cfg.CloseWaitTimeout)
	}
	if cfg.TelegramToken != "token123" || cfg.TelegramChatID != "999" {
		t.Errorf("telegram = %q/%q", cfg.TelegramToken, cfg.TelegramChatID)
	}
	if cfg.WatchAccount != "101" {
		t.Errorf("WatchAccount = %q", cfg.WatchAccount)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeSettings(t, `
[Settings]
GroupURL = https://t.me/example_group
BotLink = https://t.me/example_bot
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CooldownMinHours != 8 || cfg.CooldownMaxHours != 14 {
		t.Errorf("default cooldown = %d..%d, want 8..14", cfg.CooldownMinHours, cfg.CooldownMaxHours)
	}
	if cfg.ClosePollInterval != 5*time.Second || cfg.CloseWaitTimeout != 900*time.Second {
		t.Errorf("default close wait = %v/%v", cfg.ClosePollInterval, cfg.CloseWaitTimeout)
	}
	if cfg.ScheduleFile != "schedule.json" {
		t.Errorf("default ScheduleFile = %q", cfg.ScheduleFile)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing group url", "[Settings]\nBotLink = https://t.me/x\n"},
		{"missing bot link", "[Settings]\nGroupURL = https://t.me/x\n"},
		{"inverted cooldown", "[Settings]\nGroupURL = a\nBotLink = b\nCooldownMinHours = 10\nCooldownMaxHours = 4\n"},
		{"zero failures cap", "[Settings]\nGroupURL = a\nBotLink = b\nMaxConsecutiveFailures = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() should reject invalid settings")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("Load() on missing file should fail")
	}
}
