package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.Empty(t, Validate(Default()))
}

func TestValidateCompressionLevelRange(t *testing.T) {
	cfg := Default()
	cfg.Advanced.CompressionLevel = 10
	assert.NotEmpty(t, Validate(cfg))

	cfg.Advanced.CompressionLevel = -2
	assert.NotEmpty(t, Validate(cfg))

	cfg.Advanced.CompressionLevel = -1
	assert.Empty(t, Validate(cfg))
}

func TestValidateLoginRatelimitNonNegative(t *testing.T) {
	cfg := Default()
	cfg.Advanced.LoginRatelimit = -1
	assert.NotEmpty(t, Validate(cfg))
}

func TestProxyProtocolToggleIsMutableAfterFreeze(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Advanced.ProxyProtocol())
	cfg.Advanced.SetProxyProtocol(true)
	assert.True(t, cfg.Advanced.ProxyProtocol())
}

func TestCleanServerNameStripsQuotes(t *testing.T) {
	assert.Equal(t, "lobby", cleanServerName(`"lobby"`))
}

func TestNormalizeForcedHostKeyLowercases(t *testing.T) {
	assert.Equal(t, "example.com", normalizeForcedHostKey("Example.COM"))
}

func TestServerInfos(t *testing.T) {
	cfg := Default()
	cfg.Servers = map[string]string{"lobby": "127.0.0.1:30066"}
	infos := cfg.ServerInfos()
	assert.Len(t, infos, 1)
	assert.Equal(t, "lobby", infos[0].Name)
	assert.Equal(t, "127.0.0.1:30066", infos[0].Address)
}
