package domain

import "time"

// DeviceToken is a push delivery address registered by a client.
type DeviceToken struct {
	Token         string    `json:"token"`
	OwnerIdentity string    `json:"ownerIdentity"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PushMessage is the payload handed to the push gateway.
type PushMessage struct {
	TargetIdentity string
	Title          string
	Body           string
	Data           map[string]string
}
