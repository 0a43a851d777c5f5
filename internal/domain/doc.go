// Package domain provides the shared types for teamtask.
//
// This package contains type definitions only. All other internal packages
// import domain; domain imports nothing internal.
//
// Key constraints:
//   - All JSON tags use snake_case
//   - Cross-references (assigned_to, created_by, team_id) are bare IDs and
//     must be resolved through a directory or store, never assumed in memory
//   - AuthContext is an immutable value passed by parameter
package domain
