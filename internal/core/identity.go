package core

import "fmt"

// Identity names either an authenticated user or an anonymous demo device.
// Day sets and quota counters for the two classes never share keys.
type Identity struct {
	UserID     int64
	DeviceHash string
}

func UserIdentity(userID int64) Identity {
	return Identity{UserID: userID}
}

func DemoIdentity(deviceHash string) Identity {
	return Identity{DeviceHash: deviceHash}
}

func (i Identity) IsDemo() bool {
	return i.DeviceHash != ""
}

// Key is the storage key component for this identity.
func (i Identity) Key() string {
	if i.IsDemo() {
		return "demo:" + i.DeviceHash
	}
	return fmt.Sprintf("user:%d", i.UserID)
}
