// Package panel is the narrow capability interface the coordinator needs
// from the external VPN panel. The coordinator never depends on the panel's
// wire format beyond this contract.
package panel

import (
	"context"
	"time"
)

// Device is one hardware-id registration as reported by the panel.
type Device struct {
	HWID        string `json:"hwid"`
	Platform    string `json:"platform"`
	DeviceModel string `json:"deviceModel"`
}

// DeviceList is the panel's device listing for one identity.
type DeviceList struct {
	Devices []Device `json:"devices"`
	Total   int      `json:"total"`
}

// RemoteUser is a panel account created through CreateUser.
type RemoteUser struct {
	UUID            string `json:"uuid"`
	SubscriptionURL string `json:"subscriptionUrl"`
}

// Node is the status of one panel node.
type Node struct {
	ID          string `json:"uuid"`
	Name        string `json:"name"`
	IsConnected bool   `json:"isConnected"`
	IsDisabled  bool   `json:"isDisabled"`
}

// CreateUserRequest describes a panel account to provision.
type CreateUserRequest struct {
	Username          string    `json:"username"`
	ExpireAt          time.Time `json:"expireAt"`
	TrafficLimitBytes int64     `json:"trafficLimitBytes"`
	HWIDDeviceLimit   int       `json:"hwidDeviceLimit"`
	Description       string    `json:"description"`
	SquadIDs          []string  `json:"activeInternalSquads"`
}

// Client is the consumed capability interface. Implementations must be safe
// for concurrent use.
type Client interface {
	GetUserDevices(ctx context.Context, identity string) (*DeviceList, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*RemoteUser, error)
	DeleteUser(ctx context.Context, identity string) (bool, error)
	DeleteDevice(ctx context.Context, ownerIdentity, hwid string) error
	GetNode(ctx context.Context, nodeID string) (*Node, error)
	RestartNode(ctx context.Context, nodeID string) error
}
