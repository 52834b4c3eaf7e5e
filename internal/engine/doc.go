// Package engine implements the querystore Engine Manager.
//
// The Manager owns the single embedded analytical engine shared by all
// consumers and multiplexes logical connections over it. It de-duplicates
// file imports through stable content identifiers, tracks which consumer
// depends on which file, and broadcasts "new data available" through a
// versioned shared-publication slot that independent consumers poll.
//
// Lifecycle is explicit throughout: files are unloaded by UnloadFile or an
// advisory Reaper, never implicitly when their last consumer disconnects;
// the engine itself is torn down only by Cleanup or PerformGlobalCleanup.
package engine
