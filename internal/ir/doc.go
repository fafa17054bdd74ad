// Package ir holds the data model shared by every other package: steps,
// regions, scripts, templates and code metadata.
//
// This package contains type definitions and small helpers only. It imports
// nothing internal except coords, so it stays the foundational layer.
//
// Key conventions:
//   - All JSON tags use snake_case, matching the stored script format
//   - Zero values mean "unset" and the Default* constants apply, except for
//     coordinates, which are pointers so that 0 remains a real position
//   - Step.Order is dense and 0-based; steps.Model maintains it
package ir
