package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voicecart/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "groq"},
			STT: config.ProviderEntry{Name: "assemblyai"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLevel   bool
		wantAssist  bool
		wantRestart []string
	}{
		{name: "identical", mutate: func(*config.Config) {}},
		{
			name:      "log level",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLevel: true,
		},
		{
			name:       "threshold",
			mutate:     func(c *config.Config) { c.Assistant.MatchThreshold = 85 },
			wantAssist: true,
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9000" },
			wantRestart: []string{"server"},
		},
		{
			name: "providers and cache",
			mutate: func(c *config.Config) {
				c.Providers.LLM.Model = "llama3.1"
				c.Cache.TTL = time.Minute
			},
			wantRestart: []string{"providers", "cache"},
		},
		{
			name:        "storage",
			mutate:      func(c *config.Config) { c.Storage.Seed = true },
			wantRestart: []string{"storage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tt.mutate(updated)
			d := config.Diff(old, updated)
			if d.LogLevelChanged != tt.wantLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.wantLevel)
			}
			if tt.wantLevel && d.NewLogLevel != updated.Server.LogLevel {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if d.AssistantChanged != tt.wantAssist {
				t.Errorf("AssistantChanged = %v, want %v", d.AssistantChanged, tt.wantAssist)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			if empty := !tt.wantLevel && !tt.wantAssist && len(tt.wantRestart) == 0; d.Empty() != empty {
				t.Errorf("Empty() = %v, want %v", d.Empty(), empty)
			}
		})
	}
}
