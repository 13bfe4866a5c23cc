package bindings

import "github.com/rickgao/mmorpg-client/internal/stdb"

// Table names.
const (
	TablePlayers          = "players"
	TablePlayerCharacters = "player_characters"
	TableEntities         = "entities"
)

// Reducer names.
const (
	ReducerEnterGame         = "enter_game"
	ReducerRespawn           = "respawn"
	ReducerUpdatePlayerInput = "update_player_input"
	ReducerPlayerSpawned     = "player_spawned"
)

// Transform is a position and rotation in world space.
type Transform struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
	Roll  float32 `json:"roll"`
}

// Player is one connected account.
type Player struct {
	Identity    stdb.Identity `json:"identity"`
	PlayerID    uint32        `json:"player_id"`
	DisplayName string        `json:"display_name"`
}

// PlayerCharacter is a character owned by a player. NeedsSpawn is set by the
// server until the client reports the pawn as spawned.
type PlayerCharacter struct {
	CharacterID uint32    `json:"character_id"`
	PlayerID    uint32    `json:"player_id"`
	EntityID    uint32    `json:"entity_id"`
	DisplayName string    `json:"display_name"`
	Transform   Transform `json:"transform"`
	NeedsSpawn  bool      `json:"needs_spawn"`
}

// Entity is a world object.
type Entity struct {
	EntityID   uint32    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	Transform  Transform `json:"transform"`
}
