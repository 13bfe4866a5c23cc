package session

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/rickgao/mmorpg-client/internal/bindings"
	"github.com/rickgao/mmorpg-client/internal/journal"
	"github.com/rickgao/mmorpg-client/internal/stdb"
)

func (m *Manager) handleConnect(conn *bindings.DbConnection, identity stdb.Identity, token string) {
	if !m.isCurrent(conn) {
		m.logger.Debug("ignoring connect from stale connection")
		return
	}

	if err := m.tokens.SaveToken(token); err != nil {
		m.logger.Warn("failed to save token", "error", err)
	}
	m.identity = identity
	m.hasIdentity = true
	m.state = StateConnected
	m.lastErr = nil

	m.logger.Info("connected", "identity", identity.String())

	_, err := conn.SubscriptionBuilder().
		OnApplied(func(ev stdb.Event) { m.handleSubscriptionApplied(conn, ev) }).
		OnError(func(err error) { m.logger.Error("subscription rejected", "error", err) }).
		SubscribeToAllTables()
	if err != nil {
		m.logger.Error("failed to subscribe", "error", err)
	}
	m.publish()
}

func (m *Manager) handleDisconnect(conn *bindings.DbConnection, err error) {
	if err != nil {
		m.logger.Warn("disconnected", "error", err)
	} else {
		m.logger.Info("disconnected")
	}
	if !m.isCurrent(conn) {
		return
	}
	m.state = StateDisconnected
	m.lastErr = err
	m.publish()
}

func (m *Manager) handleConnectError(conn *bindings.DbConnection, err error) {
	m.logger.Error("connection failed",
		"server_uri", m.cfg.ServerURI,
		"module", m.cfg.ModuleName,
		"error", err,
	)
	if !m.isCurrent(conn) {
		return
	}
	m.state = StateDisconnected
	m.lastErr = err
	m.publish()
}

// handleSubscriptionApplied finds the local player and its characters in the
// initial rows.
func (m *Manager) handleSubscriptionApplied(conn *bindings.DbConnection, ev stdb.Event) {
	if !m.isCurrent(conn) || conn.Db == nil {
		m.logger.Warn("subscription applied without a live connection")
		return
	}
	db := conn.Db
	m.logger.Info("subscription applied",
		"request_id", ev.RequestID,
		"players", db.Players.Count(),
		"characters", db.PlayerCharacters.Count(),
		"entities", db.Entities.Count(),
	)

	player, ok := db.Players.FindByIdentity(m.identity)
	if !ok {
		m.logger.Warn("local player not found yet", "identity", m.identity.String())
		return
	}
	m.observeLocalPlayer(player)
	m.logger.Info("local player found",
		"player_id", player.PlayerID,
		"display_name", player.DisplayName,
	)

	chars := db.PlayerCharacters.FilterByPlayerID(player.PlayerID)
	if len(chars) == 0 {
		m.logger.Warn("local player has no characters yet", "player_id", player.PlayerID)
	}
	for _, pc := range chars {
		m.checkSpawn(pc)
	}
	m.publish()
}

func (m *Manager) registerRowCallbacks(conn *bindings.DbConnection) {
	db := conn.Db

	db.Players.OnInsert(func(ev stdb.Event, p bindings.Player) {
		m.record(bindings.TablePlayers, journal.OpInsert, p.Identity.String(), p)
		m.onPlayerRow(conn, p)
	})
	db.Players.OnUpdate(func(ev stdb.Event, _, p bindings.Player) {
		m.record(bindings.TablePlayers, journal.OpUpdate, p.Identity.String(), p)
		m.onPlayerRow(conn, p)
	})
	db.Players.OnDelete(func(ev stdb.Event, p bindings.Player) {
		m.record(bindings.TablePlayers, journal.OpDelete, p.Identity.String(), p)
		if m.isCurrent(conn) && m.hasIdentity && p.Identity == m.identity {
			m.logger.Warn("local player row deleted", "player_id", p.PlayerID)
		}
	})

	db.PlayerCharacters.OnInsert(func(ev stdb.Event, pc bindings.PlayerCharacter) {
		m.record(bindings.TablePlayerCharacters, journal.OpInsert, uintKey(pc.CharacterID), pc)
		m.onCharacterRow(conn, pc)
	})
	db.PlayerCharacters.OnUpdate(func(ev stdb.Event, _, pc bindings.PlayerCharacter) {
		m.record(bindings.TablePlayerCharacters, journal.OpUpdate, uintKey(pc.CharacterID), pc)
		m.onCharacterRow(conn, pc)
	})
	db.PlayerCharacters.OnDelete(func(ev stdb.Event, pc bindings.PlayerCharacter) {
		m.record(bindings.TablePlayerCharacters, journal.OpDelete, uintKey(pc.CharacterID), pc)
		if m.isCurrent(conn) {
			delete(m.spawnPending, pc.CharacterID)
		}
	})

	db.Entities.OnInsert(func(ev stdb.Event, e bindings.Entity) {
		m.record(bindings.TableEntities, journal.OpInsert, uintKey(e.EntityID), e)
		m.logger.Debug("entity inserted", "entity_id", e.EntityID, "entity_type", e.EntityType)
	})
	db.Entities.OnUpdate(func(ev stdb.Event, _, e bindings.Entity) {
		m.record(bindings.TableEntities, journal.OpUpdate, uintKey(e.EntityID), e)
	})
	db.Entities.OnDelete(func(ev stdb.Event, e bindings.Entity) {
		m.record(bindings.TableEntities, journal.OpDelete, uintKey(e.EntityID), e)
		m.logger.Debug("entity deleted", "entity_id", e.EntityID)
	})
}

func (m *Manager) onPlayerRow(conn *bindings.DbConnection, p bindings.Player) {
	if !m.isCurrent(conn) || !m.hasIdentity || p.Identity != m.identity {
		return
	}
	m.observeLocalPlayer(p)
}

func (m *Manager) observeLocalPlayer(p bindings.Player) {
	m.localPlayerID = p.PlayerID
	m.hasPlayer = true
	m.setDisplayName(p.DisplayName)
}

func (m *Manager) onCharacterRow(conn *bindings.DbConnection, pc bindings.PlayerCharacter) {
	if !m.isCurrent(conn) || !m.hasPlayer || pc.PlayerID != m.localPlayerID {
		return
	}
	m.checkSpawn(pc)
}

// checkSpawn reports a character flagged needs_spawn once per flag raise.
// Spawning itself is left to the OnSpawnNeeded hook.
func (m *Manager) checkSpawn(pc bindings.PlayerCharacter) {
	if !pc.NeedsSpawn {
		delete(m.spawnPending, pc.CharacterID)
		return
	}
	if m.spawnPending[pc.CharacterID] {
		return
	}
	m.spawnPending[pc.CharacterID] = true

	m.logger.Info("character needs spawn",
		"character_id", pc.CharacterID,
		"entity_id", pc.EntityID,
		"pawn_class", m.cfg.PlayerPawnClass,
	)
	if m.onSpawnNeeded != nil {
		m.onSpawnNeeded(pc, m.cfg.PlayerPawnClass)
	}
}

func (m *Manager) record(table string, op journal.Op, key string, row any) {
	if m.journal == nil {
		return
	}
	if !m.journal.Record(journal.Event{
		Table:      table,
		Op:         op,
		RowKey:     key,
		Payload:    row,
		ObservedAt: m.now(),
	}) {
		m.logger.Debug("journal dropped row event", "table", table, "op", op)
	}
}

// normalizeName trims and NFC-normalizes a display name so equal names
// compare equal regardless of encoding.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func uintKey(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
