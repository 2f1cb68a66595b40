// Package config loads and validates the CLI's JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Config struct {
	Signaling Signaling `json:"signaling"`
	ICE       []ICE     `json:"ice_servers"`
	Media     Media     `json:"media"`
	Paths     Paths     `json:"paths"`
}

// Signaling selects and parameterizes the rendezvous transport.
type Signaling struct {
	// Transport is "pubsub" (libp2p GossipSub) or "ws" (relay server).
	Transport string `json:"transport"`

	// Topic both peers agreed to meet on.
	Topic string `json:"topic"`

	// pubsub transport settings.
	ListenPort int    `json:"listen_port"`
	MdnsTag    string `json:"mdns_tag"`
	Bootstrap  string `json:"bootstrap"` // optional peer multiaddr to dial

	// ws transport settings.
	RelayURL string `json:"relay_url"`
}

// ICE is one STUN/TURN server entry.
type ICE struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

type Media struct {
	VideoWidth     int  `json:"video_width"`
	VideoHeight    int  `json:"video_height"`
	VideoFrameRate int  `json:"video_frame_rate"`
	EnableAudio    bool `json:"enable_audio"`
}

type Paths struct {
	// RecordDir receives the remote media recording (IVF/OGG files).
	RecordDir string `json:"record_dir"`
	// HistoryDir holds the call history database.
	HistoryDir string `json:"history_dir"`
}

// Default returns a config with workable defaults for a LAN test call.
func Default() Config {
	return Config{
		Signaling: Signaling{
			Transport:  "pubsub",
			Topic:      "peercall-demo",
			ListenPort: 0,
			MdnsTag:    "peercall",
		},
		ICE: []ICE{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		Media: Media{
			VideoWidth:     640,
			VideoHeight:    480,
			VideoFrameRate: 30,
			EnableAudio:    true,
		},
		Paths: Paths{
			RecordDir:  "recordings",
			HistoryDir: "data",
		},
	}
}

// Load reads path, layers it over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the program assumes.
func (c *Config) Validate() error {
	switch c.Signaling.Transport {
	case "pubsub":
		if c.Signaling.ListenPort < 0 || c.Signaling.ListenPort > 65535 {
			return errors.New("signaling.listen_port must be 0..65535")
		}
	case "ws":
		if c.Signaling.RelayURL == "" {
			return errors.New("signaling.relay_url is required for the ws transport")
		}
	default:
		return errors.New(`signaling.transport must be "pubsub" or "ws"`)
	}
	if c.Signaling.Topic == "" {
		return errors.New("signaling.topic is required")
	}
	if len(c.ICE) == 0 {
		return errors.New("at least one ice_servers entry is required")
	}
	for i, s := range c.ICE {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d].urls is empty", i)
		}
	}
	if c.Media.VideoWidth < 0 || c.Media.VideoHeight < 0 || c.Media.VideoFrameRate < 0 {
		return errors.New("media dimensions must be >= 0")
	}
	return nil
}
