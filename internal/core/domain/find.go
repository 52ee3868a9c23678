package domain

import "time"

// Find is an artifact recorded in the field. It may reference the session
// during which it was found; deleting that session clears the reference.
type Find struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	SessionID *string   `json:"session_id,omitempty"`
	Name      string    `json:"name"`
	Location  GeoPoint  `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}
