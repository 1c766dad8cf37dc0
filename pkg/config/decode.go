package config

// treeToConfig materializes a typed, defaulted Config from a migrated
// key-value tree. Unknown or missing keys fall back to the
// documented defaults; never to zero values, so an old config that never
// mentions e.g. "show-max-players" still gets 500 rather than 0.
func treeToConfig(t tree) *Config {
	cfg := Default()

	cfg.Bind = t.stringOr("bind", cfg.Bind)
	cfg.Motd = t.stringOr("motd", cfg.Motd)
	cfg.ShowMaxPlayers = intOr(t, "show-max-players", cfg.ShowMaxPlayers)
	cfg.Debug = boolOr(t, "debug", cfg.Debug)
	cfg.AnnounceForge = boolOr(t, "announce-forge", cfg.AnnounceForge)
	cfg.PreventClientProxyConnections = boolOr(t, "prevent-client-proxy-connections", cfg.PreventClientProxyConnections)
	cfg.KickExistingPlayers = boolOr(t, "kick-existing-players", cfg.KickExistingPlayers)
	cfg.EnablePlayerAddressLogging = boolOr(t, "enable-player-address-logging", cfg.EnablePlayerAddressLogging)
	cfg.PlayerInfoForwardingMode = ForwardingMode(t.stringOr("player-info-forwarding-mode", string(cfg.PlayerInfoForwardingMode)))
	cfg.ForwardingSecretFile = t.stringOr("forwarding-secret-file", cfg.ForwardingSecretFile)
	cfg.PingPassthrough = PingPassthroughMode(t.stringOr("ping-passthrough", string(cfg.PingPassthrough)))
	cfg.ConfigVersion = t.configVersion()

	cfg.OnlineMode = boolOr(t, "online-mode", cfg.OnlineMode)
	cfg.ForceKeyAuthentication = boolOr(t, "force-key-authentication", cfg.ForceKeyAuthentication)
	cfg.Authentication.EnableLittleSkin = boolOr(t, "authentication.enable-littleskin", cfg.Authentication.EnableLittleSkin)
	cfg.Authentication.LittleSkinWhitelist = stringSliceOr(t, "authentication.littleskin-whitelist", cfg.Authentication.LittleSkinWhitelist)

	if serversRaw, ok := t.get("servers"); ok {
		if m, ok := serversRaw.(map[string]interface{}); ok {
			servers := make(map[string]string, len(m))
			for name, v := range m {
				if addr, ok := v.(string); ok {
					servers[cleanServerName(name)] = addr
				}
			}
			cfg.Servers = servers
		}
	}
	cfg.AttemptConnectionOrder = stringSliceOr(t, "attempt-connection-order", cfg.AttemptConnectionOrder)

	if forcedRaw, ok := t.get("forced-hosts"); ok {
		if m, ok := forcedRaw.(map[string]interface{}); ok {
			forced := make(map[string][]string, len(m))
			for host, v := range m {
				forced[normalizeForcedHostKey(host)] = toStringSlice(v)
			}
			cfg.ForcedHosts = forced
		}
	}

	cfg.Advanced.CompressionLevel = intOr(t, "advanced.compression-level", cfg.Advanced.CompressionLevel)
	cfg.Advanced.CompressionThreshold = intOr(t, "advanced.compression-threshold", cfg.Advanced.CompressionThreshold)
	cfg.Advanced.LoginRatelimit = intOr(t, "advanced.login-ratelimit", cfg.Advanced.LoginRatelimit)
	cfg.Advanced.ConnectionTimeout = intOr(t, "advanced.connection-timeout", cfg.Advanced.ConnectionTimeout)
	cfg.Advanced.ReadTimeout = intOr(t, "advanced.read-timeout", cfg.Advanced.ReadTimeout)
	cfg.Advanced.TCPFastOpen = boolOr(t, "advanced.tcp-fast-open", cfg.Advanced.TCPFastOpen)
	cfg.Advanced.BungeePluginChannelEnabled = boolOr(t, "advanced.bungee-plugin-message-channel", cfg.Advanced.BungeePluginChannelEnabled)
	cfg.Advanced.SetProxyProtocol(boolOr(t, "advanced.proxy-protocol", cfg.Advanced.ProxyProtocol()))

	cfg.Query.Enabled = boolOr(t, "query.enabled", cfg.Query.Enabled)
	cfg.Query.Port = intOr(t, "query.port", cfg.Query.Port)
	cfg.Query.Map = t.stringOr("query.map", cfg.Query.Map)

	cfg.Metrics.Enabled = boolOr(t, "metrics.enabled", cfg.Metrics.Enabled)
	cfg.Metrics.Port = intOr(t, "metrics.port", cfg.Metrics.Port)

	return cfg
}

func intOr(t tree, path string, fallback int) int {
	v, ok := t.get(path)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

func boolOr(t tree, path string, fallback bool) bool {
	v, ok := t.get(path)
	if !ok {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func stringSliceOr(t tree, path string, fallback []string) []string {
	v, ok := t.get(path)
	if !ok {
		return fallback
	}
	return toStringSlice(v)
}

func toStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
