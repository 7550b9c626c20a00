// Package config loads server configuration from an optional TOML file
// and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/getset-labs/pox-mcp/internal/logger"
)

// Transport selects how the MCP server talks to clients.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Default configuration values.
const (
	DefaultTransport = TransportStdio
	DefaultHTTPHost  = "127.0.0.1"
	DefaultHTTPPort  = 3000
	DefaultHTTPPath  = "/mcp"
	DefaultLogLevel  = "INFO"
)

// Server holds the MCP server configuration.
type Server struct {
	Transport     Transport `json:"transport" validate:"oneof=stdio http"`
	HTTPHost      string    `json:"http_host" validate:"hostname_rfc1123|ip"`
	HTTPPort      int       `json:"http_port" validate:"min=1,max=65535"`
	HTTPPath      string    `json:"http_path" validate:"startswith=/"`
	StatelessHTTP bool      `json:"stateless_http"`
	LogLevel      string    `json:"log_level"`
	LogFile       string    `json:"log_file"`
}

// Load reads configuration with precedence: defaults, then the TOML
// file at configPath (if given), then environment variables
// (TRANSPORT, HTTP_HOST, HTTP_PORT, HTTP_PATH, STATELESS_HTTP,
// LOG_LEVEL, LOG_FILE).
func Load(configPath string) (*Server, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			switch key {
			case "TRANSPORT", "HTTP_HOST", "HTTP_PORT", "HTTP_PATH",
				"STATELESS_HTTP", "LOG_LEVEL", "LOG_FILE":
				return strings.ToLower(key), value
			}
			return "", nil
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	cfg := &Server{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills unset fields with defaults.
func (c *Server) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	c.Transport = Transport(strings.ToLower(string(c.Transport)))
	if c.HTTPHost == "" {
		c.HTTPHost = DefaultHTTPHost
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.HTTPPath == "" {
		c.HTTPPath = DefaultHTTPPath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogLevel = strings.ToUpper(c.LogLevel)
}

// Validate checks the configuration using struct tags plus the log
// level enum.
func (c *Server) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
