// Package recovery centralizes failure handling for the layer: classified
// retry with exponential backoff, session snapshot backup and restore, and
// a boundary construct that contains rendering-path panics.
//
// All retry decisions are made here. Other components hand their fallible
// operations to an Engine instead of deciding retry eligibility themselves.
package recovery
