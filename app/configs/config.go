package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Server    ServerConfig    `json:"server"`
	Assistant AssistantConfig `json:"assistant"`
	Chat      ChatConfig      `json:"chat"`
	Queue     QueueConfig     `json:"queue"`
	Security  SecurityConfig  `json:"security"`
}

type AgentConfig struct {
	Name      string `json:"name"`
	CLIUserID string `json:"cli_user_id"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type AssistantConfig struct {
	ConfidenceThreshold     float64 `json:"confidence_threshold"`
	ReminderScanIntervalSec int     `json:"reminder_scan_interval_sec"`
	ReminderScanTimeoutSec  int     `json:"reminder_scan_timeout_sec"`
	HomeLocation            string  `json:"home_location"`
}

type ChatConfig struct {
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"`
}

type QueueConfig struct {
	Enabled           bool `json:"enabled"`
	Buffer            int  `json:"buffer"`
	EnqueueTimeoutSec int  `json:"enqueue_timeout_sec"`
	AttemptTimeoutSec int  `json:"attempt_timeout_sec"`
	MaxRetries        int  `json:"max_retries"`
	RetryDelaySec     int  `json:"retry_delay_sec"`
}

type SecurityConfig struct {
	AdminUserIDs []string `json:"admin_user_ids"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name:      "Atlas",
			CLIUserID: "local_user",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Assistant: AssistantConfig{
			ConfidenceThreshold:     0.6,
			ReminderScanIntervalSec: 60,
			ReminderScanTimeoutSec:  10,
		},
		Chat: ChatConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Queue: QueueConfig{
			Enabled:           false,
			Buffer:            64,
			EnqueueTimeoutSec: 3,
			AttemptTimeoutSec: 60,
			MaxRetries:        1,
			RetryDelaySec:     2,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "Atlas"
	}
	if strings.TrimSpace(cfg.Agent.CLIUserID) == "" {
		cfg.Agent.CLIUserID = "local_user"
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 8080
	}
	if cfg.Assistant.ConfidenceThreshold <= 0 || cfg.Assistant.ConfidenceThreshold > 1 {
		cfg.Assistant.ConfidenceThreshold = 0.6
	}
	if cfg.Assistant.ReminderScanIntervalSec <= 0 {
		cfg.Assistant.ReminderScanIntervalSec = 60
	}
	if cfg.Assistant.ReminderScanTimeoutSec <= 0 {
		cfg.Assistant.ReminderScanTimeoutSec = 10
	}
	cfg.Assistant.HomeLocation = strings.TrimSpace(cfg.Assistant.HomeLocation)
	if strings.TrimSpace(cfg.Chat.Model) == "" {
		cfg.Chat.Model = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.Chat.APIKeyEnv) == "" {
		cfg.Chat.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Queue.Buffer <= 0 {
		cfg.Queue.Buffer = 64
	}
	if cfg.Queue.EnqueueTimeoutSec <= 0 {
		cfg.Queue.EnqueueTimeoutSec = 3
	}
	if cfg.Queue.AttemptTimeoutSec <= 0 {
		cfg.Queue.AttemptTimeoutSec = 60
	}
	if cfg.Queue.MaxRetries < 0 {
		cfg.Queue.MaxRetries = 0
	}
	if cfg.Queue.RetryDelaySec < 0 {
		cfg.Queue.RetryDelaySec = 0
	}
	cfg.Security.AdminUserIDs = normalizeUserIDs(cfg.Security.AdminUserIDs)
}

func normalizeUserIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
