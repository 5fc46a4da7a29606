// Package registry tracks the set of client connections accepted by the relay.
//
// Membership is an over-approximation of the truly live set: a connection can
// go non-open without its transport reporting a close, and stays registered
// until Sweep removes it or the owner calls Unregister.
//
// ForEachLive visits only open connections and never mutates the set, so it
// is safe to call from several broadcast paths at once.
package registry
