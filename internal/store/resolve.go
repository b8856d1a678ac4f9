package store

import (
	"fmt"
	"os"
)

// ResolveStore determines the store ID to use.
// Priority: explicit > SPANSTORE_STORE env > "default".
func ResolveStore(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateStoreID(explicit); err != nil {
			return "", fmt.Errorf("invalid store ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if envStore := os.Getenv("SPANSTORE_STORE"); envStore != "" {
		if err := ValidateStoreID(envStore); err != nil {
			return "", fmt.Errorf("invalid SPANSTORE_STORE %q: %w", envStore, err)
		}
		return envStore, nil
	}

	return DefaultStoreID, nil
}

// ResolveDBPath returns the database file for a store. An explicit path
// wins over the store ID.
func ResolveDBPath(explicitPath, storeID string) (string, error) {
	if explicitPath != "" {
		return explicitPath, nil
	}
	id, err := ResolveStore(storeID)
	if err != nil {
		return "", err
	}
	return StoreDBPath(id), nil
}
