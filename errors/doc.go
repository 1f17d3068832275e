// Package errors provides standardized error handling for perfkit components.
// It includes error classification, standard error variables, and helper
// functions for consistent error wrapping across the layer.
//
// Classification is pure and deterministic: given the same raw error shape,
// Classify always produces the same ClassifiedError. No retry decision is
// made anywhere in perfkit without first producing this structure.
package errors
