// Package lazyload defers resource fetching until a registered UI handle
// becomes visible. Loads run through the recovery engine for retry, are
// deduplicated per resource id, and are written through to the cache so a
// revisit never re-fetches.
package lazyload
