package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashDeviceID derives the stored identity for an anonymous demo device.
// Only the truncated one-way hash is ever persisted, never the raw id.
func HashDeviceID(deviceID string) string {
	sum := sha256.Sum256([]byte(deviceID))
	return hex.EncodeToString(sum[:16])
}
