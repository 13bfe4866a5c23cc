package bindings

import "github.com/rickgao/mmorpg-client/internal/stdb"

// PlayersTable mirrors the players table.
type PlayersTable struct {
	*stdb.TableCache[stdb.Identity, Player]
	byPlayerID *stdb.UniqueIndex[uint32, stdb.Identity, Player]
}

// FindByIdentity looks a player up by primary key.
func (t *PlayersTable) FindByIdentity(id stdb.Identity) (Player, bool) {
	return t.Find(id)
}

// FindByPlayerID looks a player up by its unique player_id.
func (t *PlayersTable) FindByPlayerID(playerID uint32) (Player, bool) {
	return t.byPlayerID.Find(playerID)
}

// PlayerCharactersTable mirrors the player_characters table.
type PlayerCharactersTable struct {
	*stdb.TableCache[uint32, PlayerCharacter]
	byPlayerID *stdb.BTreeIndex[uint32, uint32, PlayerCharacter]
	byEntityID *stdb.BTreeIndex[uint32, uint32, PlayerCharacter]
}

// FindByCharacterID looks a character up by primary key.
func (t *PlayerCharactersTable) FindByCharacterID(characterID uint32) (PlayerCharacter, bool) {
	return t.Find(characterID)
}

// FilterByPlayerID returns the characters owned by playerID.
func (t *PlayerCharactersTable) FilterByPlayerID(playerID uint32) []PlayerCharacter {
	return t.byPlayerID.Filter(playerID)
}

// FilterByEntityID returns the characters bound to entityID.
func (t *PlayerCharactersTable) FilterByEntityID(entityID uint32) []PlayerCharacter {
	return t.byEntityID.Filter(entityID)
}

// EntitiesTable mirrors the entities table.
type EntitiesTable struct {
	*stdb.TableCache[uint32, Entity]
}

// FindByEntityID looks an entity up by primary key.
func (t *EntitiesTable) FindByEntityID(entityID uint32) (Entity, bool) {
	return t.Find(entityID)
}

// RemoteTables holds every table the module publishes.
type RemoteTables struct {
	Players          *PlayersTable
	PlayerCharacters *PlayerCharactersTable
	Entities         *EntitiesTable
}

// NewRemoteTables creates empty mirrors with their indexes.
func NewRemoteTables() *RemoteTables {
	players := stdb.NewTableCache(TablePlayers, func(p Player) stdb.Identity { return p.Identity })
	characters := stdb.NewTableCache(TablePlayerCharacters, func(c PlayerCharacter) uint32 { return c.CharacterID })
	entities := stdb.NewTableCache(TableEntities, func(e Entity) uint32 { return e.EntityID })

	return &RemoteTables{
		Players: &PlayersTable{
			TableCache: players,
			byPlayerID: stdb.NewUniqueIndex(players, func(p Player) uint32 { return p.PlayerID }),
		},
		PlayerCharacters: &PlayerCharactersTable{
			TableCache: characters,
			byPlayerID: stdb.NewBTreeIndex(characters, func(c PlayerCharacter) uint32 { return c.PlayerID }),
			byEntityID: stdb.NewBTreeIndex(characters, func(c PlayerCharacter) uint32 { return c.EntityID }),
		},
		Entities: &EntitiesTable{TableCache: entities},
	}
}

// All returns the tables for registration with a connection.
func (r *RemoteTables) All() []stdb.Table {
	return []stdb.Table{r.Players.TableCache, r.PlayerCharacters.TableCache, r.Entities.TableCache}
}
