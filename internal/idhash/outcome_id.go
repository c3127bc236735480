// Package idhash derives stable identifiers from natural keys.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeOutcomeID returns the hex SHA-256 of "snapshotID|setupID".
// Re-evaluating the same setup yields the same 64-character id.
func ComputeOutcomeID(snapshotID, setupID string) string {
	sum := sha256.Sum256([]byte(snapshotID + "|" + setupID))
	return hex.EncodeToString(sum[:])
}
