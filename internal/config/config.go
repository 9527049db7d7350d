package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig      `json:"server" yaml:"server"`
	Log        LogConfig         `json:"log" yaml:"log"`
	Protocol   ProtocolConfig    `json:"protocol" yaml:"protocol"`
	Tracer     TracerConfig      `json:"tracer" yaml:"tracer"`
	SourceMaps map[string]string `json:"sourceMaps,omitempty" yaml:"sourceMaps,omitempty"` // generated URL -> source map file
	Inventory  string            `json:"inventory,omitempty" yaml:"inventory,omitempty"`   // debuggee inventory file
	Remote     RemoteConfig      `json:"remote" yaml:"remote"`
}

// ServerConfig configures the HTTP listener of the protocol server
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

// ProtocolConfig holds actor protocol settings.
//
// ProcessPrefixes maps an actor id fragment to the front kind used for
// getProcess responses. Matching is by substring, first match wins.
type ProtocolConfig struct {
	ServerPrefix    string          `json:"serverPrefix,omitempty" yaml:"serverPrefix,omitempty"`
	ProcessPrefixes []ProcessPrefix `json:"processPrefixes,omitempty" yaml:"processPrefixes,omitempty"`
}

// ProcessPrefix associates an actor id fragment with a process front kind
type ProcessPrefix struct {
	Fragment string `json:"fragment" yaml:"fragment"`
	Kind     string `json:"kind" yaml:"kind"` // "descriptor", "content" or "parent"
}

// TracerConfig holds defaults applied to tracing sessions
type TracerConfig struct {
	DefaultLogMethod string `json:"defaultLogMethod,omitempty" yaml:"defaultLogMethod,omitempty"`
	MaxDepth         int    `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	MaxRecords       int    `json:"maxRecords,omitempty" yaml:"maxRecords,omitempty"`
	EngineWasm       string `json:"engineWasm,omitempty" yaml:"engineWasm,omitempty"`
}

// RemoteConfig describes how the client reaches a protocol server
type RemoteConfig struct {
	Type string `json:"type" yaml:"type"` // "stdio", "http", or "sse"

	// Stdio fields
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// HTTP/SSE fields
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if len(c.Protocol.ProcessPrefixes) == 0 {
		c.Protocol.ProcessPrefixes = DefaultProcessPrefixes()
	}
	if c.Tracer.DefaultLogMethod == "" {
		c.Tracer.DefaultLogMethod = "console"
	}
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("TRACEBYTE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("TRACEBYTE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// DefaultProcessPrefixes returns the actor id fragments used by current servers
func DefaultProcessPrefixes() []ProcessPrefix {
	return []ProcessPrefix{
		{Fragment: "processDescriptor", Kind: "descriptor"},
		{Fragment: "contentProcessTarget", Kind: "content"},
	}
}

// validate checks if the configuration is valid
func validate(config *Config) error {
	for _, p := range config.Protocol.ProcessPrefixes {
		if p.Fragment == "" {
			return fmt.Errorf("process prefix with empty fragment")
		}
		switch p.Kind {
		case "descriptor", "content", "parent":
		default:
			return fmt.Errorf("process prefix %q: invalid kind %q (must be descriptor, content, or parent)", p.Fragment, p.Kind)
		}
	}

	switch config.Tracer.DefaultLogMethod {
	case "stdout", "console", "debugger-sidebar", "profiler":
	default:
		return fmt.Errorf("tracer: invalid defaultLogMethod %q", config.Tracer.DefaultLogMethod)
	}
	if config.Tracer.MaxDepth < 0 || config.Tracer.MaxRecords < 0 {
		return fmt.Errorf("tracer: limits must not be negative")
	}

	switch config.Remote.Type {
	case "":
	case "stdio":
		if config.Remote.Command == "" {
			return fmt.Errorf("remote: command is required for stdio type")
		}
	case "http", "sse":
		if config.Remote.URL == "" {
			return fmt.Errorf("remote: url is required for %s type", config.Remote.Type)
		}
	default:
		return fmt.Errorf("remote: invalid type %q (must be stdio, http, or sse)", config.Remote.Type)
	}

	return nil
}
