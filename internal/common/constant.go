// Package common contains shared constants and sentinel errors used across
// the relay components.
package common

// AuthorizationHeaderName carries the session token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme prefixes the session token inside AuthorizationHeaderName.
const BearerScheme = "Bearer "

// MaxCastBytes is the protocol limit on the UTF-8 size of a cast body.
const MaxCastBytes = 320
