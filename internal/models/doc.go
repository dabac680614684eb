// package models defines the data model for cross-service playlist
// synchronization: source tracks, search candidates, resolution outcomes,
// and destination playlist state.
package models
