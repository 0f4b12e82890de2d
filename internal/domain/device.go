package domain

import "time"

// PushPermission is the platform permission answer persisted on the device.
type PushPermission string

const (
	PushUndetermined PushPermission = ""
	PushGranted      PushPermission = "granted"
	PushDenied       PushPermission = "denied"
)

type RegisterPushTokenRequest struct {
	Token      string  `json:"token" validate:"required"`
	Platform   string  `json:"platform,omitempty" validate:"omitempty,oneof=android ios web"`
	DeviceUUID *string `json:"device_uuid,omitempty"`
}

type Device struct {
	DeviceID  string    `json:"id" dynamodbav:"device_id"`
	UUID      string    `json:"uuid" dynamodbav:"device_uuid"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	PushToken *string   `json:"push_token" dynamodbav:"push_token"`
	Platform  string    `json:"platform,omitempty" dynamodbav:"platform"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
