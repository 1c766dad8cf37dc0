// Package config implements the proxy's versioned configuration pipeline:
// parse a persistent TOML document, migrate it forward across schema
// versions, validate it, and freeze it into an immutable snapshot.
package config

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/atomic"
)

// ForwardingMode selects how the proxy conveys real player identity to a
// backend server.
type ForwardingMode string

const (
	ForwardingNone        ForwardingMode = "NONE"
	ForwardingLegacy      ForwardingMode = "LEGACY"
	ForwardingBungeeGuard ForwardingMode = "BUNGEEGUARD"
	ForwardingModern      ForwardingMode = "MODERN"
)

// PingPassthroughMode controls how much of a backend's status response is
// relayed to clients pinging the proxy.
type PingPassthroughMode string

const (
	PingPassthroughDisabled    PingPassthroughMode = "DISABLED"
	PingPassthroughMods        PingPassthroughMode = "MODS"
	PingPassthroughDescription PingPassthroughMode = "DESCRIPTION"
	PingPassthroughAll         PingPassthroughMode = "ALL"
)

// CurrentVersion is the schema version new configs are written at and the
// target of the last registered migration.
const CurrentVersion = "2.8"

// ServerInfo is one entry of the configured backend server pool, derived
// from the Config.Servers name->address map.
type ServerInfo struct {
	Name    string
	Address string
}

// Advanced holds tunables that rarely need changing. ProxyProtocol is the
// one field that stays mutable after the config snapshot is frozen, so it
// is backed by an atomic.Bool to stay safe against torn reads.
type Advanced struct {
	CompressionLevel           int  `toml:"compression-level"`
	CompressionThreshold       int  `toml:"compression-threshold"`
	LoginRatelimit             int  `toml:"login-ratelimit"`
	ConnectionTimeout          int  `toml:"connection-timeout"`
	ReadTimeout                int  `toml:"read-timeout"`
	TCPFastOpen                bool `toml:"tcp-fast-open"`
	BungeePluginChannelEnabled bool `toml:"bungee-plugin-message-channel"`
	proxyProtocol              atomic.Bool
}

// ProxyProtocol reports whether HAProxy's PROXY protocol is enabled.
func (a *Advanced) ProxyProtocol() bool { return a.proxyProtocol.Load() }

// SetProxyProtocol toggles the PROXY protocol flag.
func (a *Advanced) SetProxyProtocol(enabled bool) { a.proxyProtocol.Store(enabled) }

// Query holds the GameSpy4 query listener settings.
type Query struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Map     string `toml:"map"`
}

// Metrics holds the metrics exporter listener settings. Metrics export
// itself is an out-of-scope peer; only the settings are part of
// the snapshot.
type Metrics struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// Authentication holds the login-validation toggles the LittleSkin-
// authentication migration nests under the "authentication" sub-table.
// online-mode and force-key-authentication predate this sub-table and
// stay top-level keys on Config itself.
type Authentication struct {
	EnableLittleSkin    bool     `toml:"enable-littleskin"`
	LittleSkinWhitelist []string `toml:"littleskin-whitelist"`
}

// Config is the immutable snapshot the rest of the proxy consumes. It is
// produced once at boot by ConfigStore.Read.
type Config struct {
	Bind                          string              `toml:"bind"`
	Motd                          string              `toml:"motd"`
	ShowMaxPlayers                int                 `toml:"show-max-players"`
	Debug                         bool                `toml:"debug"`
	AnnounceForge                 bool                `toml:"announce-forge"`
	PreventClientProxyConnections bool                `toml:"prevent-client-proxy-connections"`
	KickExistingPlayers           bool                `toml:"kick-existing-players"`
	EnablePlayerAddressLogging    bool                `toml:"enable-player-address-logging"`
	PlayerInfoForwardingMode      ForwardingMode       `toml:"player-info-forwarding-mode"`
	ForwardingSecretFile          string              `toml:"forwarding-secret-file"`
	ForwardingSecret              []byte              `toml:"-"`
	PingPassthrough               PingPassthroughMode `toml:"ping-passthrough"`
	ConfigVersion                 string              `toml:"config-version"`
	OnlineMode                    bool                `toml:"online-mode"`
	ForceKeyAuthentication        bool                `toml:"force-key-authentication"`

	Authentication Authentication `toml:"authentication"`

	Servers                map[string]string   `toml:"servers"`
	AttemptConnectionOrder []string            `toml:"attempt-connection-order"`
	ForcedHosts            map[string][]string `toml:"forced-hosts"`

	Advanced Advanced `toml:"advanced"`
	Query    Query    `toml:"query"`
	Metrics  Metrics  `toml:"metrics"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Bind:                          "0.0.0.0:25565",
		Motd:                          "<#09add3>A Velocity Server",
		ShowMaxPlayers:                500,
		AnnounceForge:                 true,
		PreventClientProxyConnections: false,
		KickExistingPlayers:           false,
		EnablePlayerAddressLogging:    true,
		PlayerInfoForwardingMode:      ForwardingNone,
		PingPassthrough:               PingPassthroughDisabled,
		ConfigVersion:                 CurrentVersion,
		OnlineMode:                    true,
		ForceKeyAuthentication:        true,
		Authentication: Authentication{
			EnableLittleSkin: true,
		},
		Servers:                make(map[string]string),
		AttemptConnectionOrder: nil,
		ForcedHosts:            make(map[string][]string),
		Advanced: Advanced{
			CompressionLevel:     -1,
			CompressionThreshold: 256,
			LoginRatelimit:       3000,
			ConnectionTimeout:    5000,
			ReadTimeout:          30000,
		},
		Query:   Query{Enabled: false, Port: 25565, Map: "Velocity"},
		Metrics: Metrics{Enabled: false, Port: 9100},
	}
}

// ValidationFault describes one discovered configuration fault. Every
// fault is non-fatal individually; validate() logs all of them and returns
// false if any exist so the startup controller can choose to abort.
type ValidationFault struct {
	Field   string
	Message string
}

func (f ValidationFault) Error() string { return fmt.Sprintf("%s: %s", f.Field, f.Message) }

// Validate checks every invariant and returns the full list of
// faults found, in no particular order. An empty slice means the config is
// valid.
func Validate(cfg *Config) []ValidationFault {
	var faults []ValidationFault

	if _, _, err := net.SplitHostPort(cfg.Bind); err != nil {
		faults = append(faults, ValidationFault{"bind", "must be a valid host:port: " + err.Error()})
	}

	for _, name := range cfg.AttemptConnectionOrder {
		if _, ok := cfg.Servers[name]; !ok {
			faults = append(faults, ValidationFault{"attempt-connection-order",
				fmt.Sprintf("references unknown server %q", name)})
		}
	}
	for host, names := range cfg.ForcedHosts {
		for _, name := range names {
			if _, ok := cfg.Servers[name]; !ok {
				faults = append(faults, ValidationFault{"forced-hosts",
					fmt.Sprintf("forced host %q references unknown server %q", host, name)})
			}
		}
	}

	switch cfg.PlayerInfoForwardingMode {
	case ForwardingModern, ForwardingBungeeGuard:
		if len(cfg.ForwardingSecret) == 0 {
			faults = append(faults, ValidationFault{"forwarding.secret",
				fmt.Sprintf("forwarding mode %s requires a non-empty secret", cfg.PlayerInfoForwardingMode)})
		}
	}

	if cfg.Advanced.CompressionLevel < -1 || cfg.Advanced.CompressionLevel > 9 {
		faults = append(faults, ValidationFault{"advanced.compression-level", "must be in [-1, 9]"})
	}
	if cfg.Advanced.CompressionThreshold < -1 {
		faults = append(faults, ValidationFault{"advanced.compression-threshold", "must be >= -1"})
	}
	if cfg.Advanced.LoginRatelimit < 0 {
		faults = append(faults, ValidationFault{"advanced.login-ratelimit", "must be >= 0"})
	}

	return faults
}

// ServerInfos returns the configured backend pool as a slice, for callers
// that want to iterate rather than look up by name.
func (c *Config) ServerInfos() []*ServerInfo {
	out := make([]*ServerInfo, 0, len(c.Servers))
	for name, addr := range c.Servers {
		out = append(out, &ServerInfo{Name: name, Address: addr})
	}
	return out
}

// cleanServerName strips the quote characters the legacy config format
// sometimes carries over from copy-pasted TOML.
func cleanServerName(name string) string {
	return strings.ReplaceAll(name, `"`, "")
}

// normalizeForcedHostKey lower-cases a forced-host virtual host key.
func normalizeForcedHostKey(host string) string {
	return strings.ToLower(host)
}
