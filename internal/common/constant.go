// Package common contains shared constants and sentinel errors used across
// fieldsync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// DeviceIDHeaderName carries the client's device id so the server can
// attribute tracking data to a device.
const DeviceIDHeaderName = "device_id"
