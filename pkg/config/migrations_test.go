package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A 2.7 config with no littleskin key gets the key
// added and config-version bumped to 2.8.
func TestMigrateAddsLittleSkinKeyAndBumpsVersion(t *testing.T) {
	t1 := tree{"config-version": "2.7"}
	migrate(t1, zap.NewNop())

	assert.Equal(t, CurrentVersion, t1.configVersion())
	v, ok := t1.get("authentication.enable-littleskin")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

// Migration monotonicity property: applying the chain twice
// yields the same result as applying it once.
func TestMigrationMonotonicity(t *testing.T) {
	t1 := tree{"config-version": "1.0"}
	migrate(t1, zap.NewNop())
	once := cloneTree(t1)

	migrate(t1, zap.NewNop())
	assert.Equal(t, once, t1)
}

func TestMigrateDoesNotReintroduceUserOverriddenMotd(t *testing.T) {
	t1 := tree{"config-version": "2.1", "motd": "<red>Custom MOTD"}
	migrate(t1, zap.NewNop())
	v, _ := t1.get("motd")
	assert.Equal(t, "<red>Custom MOTD", v)
}

func TestMigrateFromFreshEmptyTreeReachesCurrentVersion(t *testing.T) {
	t1 := tree{}
	migrate(t1, zap.NewNop())
	assert.Equal(t, CurrentVersion, t1.configVersion())
}

func TestVersionLess(t *testing.T) {
	assert.True(t, versionLess("1.0", "2.0"))
	assert.True(t, versionLess("2.7", "2.8"))
	assert.False(t, versionLess("2.8", "2.8"))
	assert.False(t, versionLess("2.8", "2.7"))
}

func cloneTree(t tree) tree {
	out := make(tree, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
