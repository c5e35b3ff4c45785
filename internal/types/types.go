// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, and the services can all import types without
// depending on each other.
package types

// Student represents one registered student.
//
// A Student is created only by a successful admission into the record
// store and is never modified afterwards. USN is stored uppercase and
// Email lowercase, so both compare case-insensitively by plain equality.
type Student struct {
	USN    string `json:"usn"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Skills string `json:"skills"`
}
