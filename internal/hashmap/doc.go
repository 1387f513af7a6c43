// Package hashmap implements the two backend hash table representations
// (a two-level chained table and a Robin Hood open-addressed table) and the
// AdaptiveMap controller that transparently migrates between them based on
// live health signals.
//
// Neither backend is safe for concurrent use; callers serialize access
// exactly as a single replay loop does (see internal/replay).
package hashmap
