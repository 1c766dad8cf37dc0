package config

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// tree is the mutable key-value representation migrations operate on: a
// nested map decoded straight from TOML, keyed by dotted paths such as
// "forwarding.secret" or "authentication.enable-littleskin".
type tree map[string]interface{}

func (t tree) get(path string) (interface{}, bool) {
	cur := map[string]interface{}(t)
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func (t tree) set(path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := map[string]interface{}(t)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func (t tree) has(path string) bool {
	_, ok := t.get(path)
	return ok
}

func (t tree) stringOr(path, fallback string) string {
	if v, ok := t.get(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// configVersion reads config-version, defaulting to "1.0" for documents
// that predate the key's introduction.
func (t tree) configVersion() string { return t.stringOr("config-version", "1.0") }

func (t tree) setConfigVersion(v string) { t.set("config-version", v) }

// versionLess reports whether a is an earlier schema version than b.
// Versions are dotted major.minor pairs; any non-numeric component sorts
// before "0".
func versionLess(a, b string) bool {
	pa, pb := strings.SplitN(a, ".", 2), strings.SplitN(b, ".", 2)
	for len(pa) < 2 {
		pa = append(pa, "0")
	}
	for len(pb) < 2 {
		pb = append(pb, "0")
	}
	ma, _ := strconv.Atoi(pa[0])
	mb, _ := strconv.Atoi(pb[0])
	if ma != mb {
		return ma < mb
	}
	na, _ := strconv.Atoi(pa[1])
	nb, _ := strconv.Atoi(pb[1])
	return na < nb
}

// migration is {shouldMigrate, migrate} pair as described.
// shouldMigrate is pure; migrate mutates the tree in place and bumps
// config-version to target.
type migration struct {
	target        string
	shouldMigrate func(t tree) bool
	migrate       func(t tree, log *zap.Logger)
}

func targetGate(target string) func(t tree) bool {
	return func(t tree) bool { return versionLess(t.configVersion(), target) }
}

// chain is the ordered, fixed list of registered migrations.
// Each target version is strictly greater than its predecessor's; engineers
// adding a migration append, they never reorder.
var chain = []migration{
	forwardingMigration,
	keyAuthenticationMigration,
	motdMigration,
	transferIntegrationMigration,
	littleSkinAuthenticationMigration,
}

// forwardingMigration introduces the player-info-forwarding-mode key,
// inferring MODERN from the legacy bungeecord/velocity-support booleans
// some 1.x configs still carry, and defaulting to LEGACY otherwise.
var forwardingMigration = migration{
	target:        "2.0",
	shouldMigrate: targetGate("2.0"),
	migrate: func(t tree, log *zap.Logger) {
		if !t.has("player-info-forwarding-mode") {
			mode := "LEGACY"
			if v, ok := t.get("velocity-support.enabled"); ok {
				if enabled, ok := v.(bool); ok && enabled {
					mode = "MODERN"
				}
			}
			t.set("player-info-forwarding-mode", mode)
			log.Info("migrated to player-info-forwarding-mode", zap.String("mode", mode))
		}
		t.setConfigVersion("2.0")
	},
}

// keyAuthenticationMigration adds force-key-authentication, defaulting to
// enabled (signed chat enforcement).
var keyAuthenticationMigration = migration{
	target:        "2.1",
	shouldMigrate: targetGate("2.1"),
	migrate: func(t tree, log *zap.Logger) {
		if !t.has("force-key-authentication") {
			t.set("force-key-authentication", true)
			log.Info("added force-key-authentication default")
		}
		t.setConfigVersion("2.1")
	},
}

// motdMigration moves a legacy formatted-string "motd" into the
// MiniMessage-flavored default if and only if it still holds the bundled
// example text, leaving any user customization untouched.
var motdMigration = migration{
	target:        "2.2",
	shouldMigrate: targetGate("2.2"),
	migrate: func(t tree, log *zap.Logger) {
		const legacyDefault = "&3A Velocity Server"
		if v, ok := t.get("motd"); ok {
			if s, ok := v.(string); ok && s == legacyDefault {
				t.set("motd", "<#09add3>A Velocity Server")
				log.Info("migrated default motd to MiniMessage format")
			}
		} else {
			t.set("motd", "<#09add3>A Velocity Server")
		}
		t.setConfigVersion("2.2")
	},
}

// transferIntegrationMigration adds the accepts-transfers toggle
// introduced for cross-server transfer packets.
var transferIntegrationMigration = migration{
	target:        "2.3",
	shouldMigrate: targetGate("2.3"),
	migrate: func(t tree, log *zap.Logger) {
		if !t.has("accepts-transfers") {
			t.set("accepts-transfers", false)
			log.Info("added accepts-transfers default")
		}
		t.setConfigVersion("2.3")
	},
}

// littleSkinAuthenticationMigration adds authentication.enable-littleskin
// and authentication.littleskin-whitelist.
var littleSkinAuthenticationMigration = migration{
	target:        CurrentVersion,
	shouldMigrate: targetGate(CurrentVersion),
	migrate: func(t tree, log *zap.Logger) {
		if !t.has("authentication.enable-littleskin") {
			t.set("authentication.enable-littleskin", true)
			log.Info("added authentication.enable-littleskin default")
		}
		if !t.has("authentication.littleskin-whitelist") {
			t.set("authentication.littleskin-whitelist", []interface{}{})
		}
		t.setConfigVersion(CurrentVersion)
	},
}

// migrate runs every migration in chain whose shouldMigrate predicate is
// true, in order, against t. Applying the chain twice is a no-op the second
// time: once config-version reaches each migration's target, shouldMigrate
// is false and migrate is skipped.
func migrate(t tree, log *zap.Logger) {
	for _, m := range chain {
		if m.shouldMigrate(t) {
			m.migrate(t, log)
		}
	}
}
