package bindings

import "github.com/rickgao/mmorpg-client/internal/stdb"

// RemoteReducers calls the module's reducers. Results arrive as transaction
// updates on the row callbacks and OnReducerResult.
type RemoteReducers struct {
	conn *stdb.DbConnection
}

// EnterGame sets the caller's display name and spawns a character.
func (r *RemoteReducers) EnterGame(name string) (uint32, error) {
	return r.conn.CallReducer(ReducerEnterGame, name)
}

// Respawn gives the caller a fresh character.
func (r *RemoteReducers) Respawn() (uint32, error) {
	return r.conn.CallReducer(ReducerRespawn)
}

// UpdatePlayerInput moves every character of the caller to t.
func (r *RemoteReducers) UpdatePlayerInput(t Transform) (uint32, error) {
	return r.conn.CallReducer(ReducerUpdatePlayerInput, t)
}

// PlayerSpawned clears the needs_spawn flag on a character.
func (r *RemoteReducers) PlayerSpawned(characterID uint32) (uint32, error) {
	return r.conn.CallReducer(ReducerPlayerSpawned, characterID)
}
