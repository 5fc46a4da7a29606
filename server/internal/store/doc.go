// Package store holds the relay's last-known-state cache: one Record per
// sensor id, whose fields are merged from every update received for that id.
// Records are never evicted; the cache grows for the lifetime of the process.
//
// Field values are kept as tagged Values (null, bool, number, string, or a raw
// JSON composite) so that merges are well defined and numbers round-trip
// without float conversion.
package store
