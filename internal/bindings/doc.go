// Package bindings exposes the mmorpg module's tables and reducers on top of
// package stdb: typed row mirrors with their indexes, and one method per
// reducer.
//
// Tables:
//
//	players            pk identity, unique player_id
//	player_characters  pk character_id, btree player_id, btree entity_id
//	entities           pk entity_id
package bindings
