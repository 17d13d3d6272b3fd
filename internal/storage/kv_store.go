// ABOUTME: Interface definition for key-value persistence of session secrets.
// ABOUTME: Defines the session keys and the contract shared by file and memory stores.
package storage

// Session keys. All values are strings and all are cleared together on logout.
const (
	KeyServer       = "server"
	KeyAccessToken  = "accessToken"
	KeyClientID     = "clientId"
	KeyClientSecret = "clientSecret"
	KeyUserID       = "userID"
)

// SessionKeys lists every key the session layer writes.
var SessionKeys = []string{KeyServer, KeyAccessToken, KeyClientID, KeyClientSecret, KeyUserID}

// KVStore defines simple key-value persistence. There are no transactions,
// but SetMany and Clear apply all their changes in a single write.
type KVStore interface {
	// Get returns the value for key, or empty string if unset.
	Get(key string) (string, error)

	// Set persists a single value.
	Set(key, value string) error

	// SetMany persists several values in one write. Empty values remove the key.
	SetMany(values map[string]string) error

	// Remove deletes a key. Removing a missing key is not an error.
	Remove(key string) error

	// Clear deletes every key.
	Clear() error
}
