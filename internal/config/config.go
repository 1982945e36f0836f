// Package config loads the declarative server/map/heartbeat
// configuration from ./server.toml, writing a default instance on
// first run, per §4.6.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Path is the on-disk location of the config file (§6).
const Path = "./server.toml"

// Server holds the `[server]` section.
type Server struct {
	IP           string `toml:"ip"`
	LocalIP      string `toml:"local_ip"`
	Port         int    `toml:"port"`
	Name         string `toml:"name"`
	MOTD         string `toml:"motd"`
	Public       bool   `toml:"public"`
	OnlineMode   bool   `toml:"online_mode"`
	Whitelisted  bool   `toml:"whitelisted"`
	MaxPlayers   int    `toml:"max_players"`
	SaveInterval int    `toml:"save_interval"` // minutes
}

// Map holds the `[map]` section.
type Map struct {
	Name            string `toml:"name"`
	CreatorUsername string `toml:"creator_username"`
	XWidth          int    `toml:"x_width"`
	YHeight         int    `toml:"y_height"`
	ZDepth          int    `toml:"z_depth"`
}

// HeartbeatTarget is one directory endpoint's settings.
type HeartbeatTarget struct {
	Active bool   `toml:"active"`
	URL    string `toml:"url"`
}

// Heartbeat holds the `[heartbeat]` section.
type Heartbeat struct {
	Enabled    bool            `toml:"enabled"`
	MineOnline HeartbeatTarget `toml:"mineonline"`
	Mojang     HeartbeatTarget `toml:"mojang"`
}

// Config is the full declarative configuration described by §4.6/§6.
type Config struct {
	Server    Server    `toml:"server"`
	Map       Map       `toml:"map"`
	Heartbeat Heartbeat `toml:"heartbeat"`
}

// Default returns the configuration defaults listed in §6.
func Default() Config {
	return Config{
		Server: Server{
			IP:           "127.0.0.1",
			LocalIP:      "127.0.0.1",
			Port:         25565,
			Name:         "A Minecraft Server",
			MOTD:         "A Minecraft Server",
			Public:       true,
			OnlineMode:   true,
			Whitelisted:  false,
			MaxPlayers:   8,
			SaveInterval: 5,
		},
		Map: Map{
			Name:            "world",
			CreatorUsername: "",
			XWidth:          32,
			YHeight:         32,
			ZDepth:          32,
		},
		Heartbeat: Heartbeat{
			Enabled: true,
			MineOnline: HeartbeatTarget{
				Active: true,
				URL:    "https://mineonline.codie.gg/",
			},
			Mojang: HeartbeatTarget{
				Active: false,
				URL:    "http://www.minecraft.net/heartbeat.jsp",
			},
		},
	}
}

// Load reads path, writing and loading a Default() instance if it does
// not yet exist, or if it exists but fails to parse, per §7's
// "Configuration failure — missing/malformed config file: create a
// default and continue" policy. log may be nil.
func Load(path string, log *logrus.Logger) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return writeDefault(path)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if log != nil {
			log.WithError(err).WithField("path", path).Warn("malformed config, writing default")
		}
		return writeDefault(path)
	}
	return cfg, nil
}

// writeDefault saves and returns a Default() config, used both when
// the file is absent and when it exists but fails to parse.
func writeDefault(path string) (Config, error) {
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
