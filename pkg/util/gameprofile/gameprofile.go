// Package gameprofile holds the Mojang game profile value type: a player's
// UUID, username and signed skin/cape properties.
package gameprofile

import "github.com/google/uuid"

// Property is a single signed profile property (e.g. "textures").
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// GameProfile identifies a Minecraft account. It is immutable once assigned
// to a TabListEntry.
type GameProfile struct {
	Id         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties,omitempty"`
}
