package validation

import (
	"encoding/json"
	"fmt"
)

// protectedConfigKeys are room config fields owned by the sync pipeline
// itself. A merge patch from upstream must never overwrite them.
var protectedConfigKeys = []string{"externalid", "id"}

// ValidateRoomConfigPatch checks that a sync entry's customdata is a usable
// JSON merge patch for a room config document
func ValidateRoomConfigPatch(patch []byte) error {
	if len(patch) == 0 {
		return nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(patch, &doc); err != nil {
		return fmt.Errorf("room config patch is not a JSON object: %w", err)
	}

	for _, key := range protectedConfigKeys {
		if _, ok := doc[key]; ok {
			return fmt.Errorf("room config patch must not set %q", key)
		}
	}

	return nil
}
