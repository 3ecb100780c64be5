package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Render.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// Render encodes c in the named format. The output can be fed back to Load
// with a matching file extension.
func Render(c Config, format string) ([]byte, error) {
	switch format {
	case FormatYAML, "yml", "":
		return yaml.Marshal(renderable(c))
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(renderable(c)); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(renderable(c), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want yaml, toml or json)", format)
	}
}

// renderedConfig mirrors Config with durations as strings, which every format
// and viper's decoder agree on.
type renderedConfig struct {
	Host     string         `yaml:"host" toml:"host" json:"host"`
	Port     int            `yaml:"port" toml:"port" json:"port"`
	Password string         `yaml:"password" toml:"password" json:"password"`
	Store    StoreConfig    `yaml:"store" toml:"store" json:"store"`
	Server   renderedServer `yaml:"server" toml:"server" json:"server"`
	Log      LogConfig      `yaml:"log" toml:"log" json:"log"`
}

type renderedServer struct {
	SendTimeout     string   `yaml:"send_timeout" toml:"send_timeout" json:"send_timeout"`
	MaxMessageBytes int64    `yaml:"max_message_bytes" toml:"max_message_bytes" json:"max_message_bytes"`
	OutboxSize      int      `yaml:"outbox_size" toml:"outbox_size" json:"outbox_size"`
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins" json:"allowed_origins"`
	IndexFile       string   `yaml:"index_file" toml:"index_file" json:"index_file"`
}

func renderable(c Config) renderedConfig {
	return renderedConfig{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		Store:    c.Store,
		Server: renderedServer{
			SendTimeout:     c.Server.SendTimeout.String(),
			MaxMessageBytes: c.Server.MaxMessageBytes,
			OutboxSize:      c.Server.OutboxSize,
			AllowedOrigins:  c.Server.AllowedOrigins,
			IndexFile:       c.Server.IndexFile,
		},
		Log: c.Log,
	}
}
