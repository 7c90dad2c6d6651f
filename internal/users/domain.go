package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a user in the remote API. The API may encode it as a JSON string or
// number; it is kept in its textual form either way.
type ID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("users: id must be a string or number: %w", err)
	}
	if n == "" {
		return fmt.Errorf("users: id must not be null")
	}
	*id = ID(n.String())
	return nil
}

// User is a record owned by the remote users API.
type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Draft is unsaved form input pending submission.
type Draft struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// NotificationKind distinguishes success and error notifications.
type NotificationKind string

const (
	KindSuccess NotificationKind = "success"
	KindError   NotificationKind = "error"
)

// Notification is a transient status message shown to the user.
type Notification struct {
	Message   string
	Kind      NotificationKind
	ExpiresAt time.Time
}

// Notification messages, one per action outcome.
const (
	msgFetchFailed    = "Failed to fetch users"
	msgUserAdded      = "User added successfully!"
	msgUserUpdated    = "User updated successfully!"
	msgMutationFailed = "Operation failed. Please try again."
	msgUserDeleted    = "User deleted successfully!"
	msgDeleteFailed   = "Failed to delete user."
	msgBusy           = "Another action is still in progress."
)
