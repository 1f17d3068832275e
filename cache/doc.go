// Package cache provides the multi-tier cache manager: reads probe the
// storage tiers fastest-first, writes pick a tier by a size heuristic and
// cascade to slower tiers on quota rejection, and a maintenance pass
// promotes hot entries toward the fastest tier.
//
// The manager stores opaque bytes. GetObject and SetObject offer typed
// access through a JSON round trip, which doubles as the size-estimation
// proxy for arbitrary values.
package cache
