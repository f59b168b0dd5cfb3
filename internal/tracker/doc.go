// Package tracker derives, caches and queries the map event rotation.
//
// Three layers, leaves first:
//   - Table / DeriveEvents / DeriveWindow compute windows from the fixed
//     4-slot hourly rotation and never fail.
//   - Cache prefers live data from a Source, keeps it for a short freshness
//     window and falls back to derivation when the source fails or is empty.
//   - Engine answers the query shapes (current, next, by name, by map, next
//     wave, next 24 hours) with non-mutating filters over the cache result.
package tracker
