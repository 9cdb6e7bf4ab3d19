// Package errors provides structured error handling for realmgate services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Realm errors
	CodeRealmNotFound    Code = "REALM_NOT_FOUND"
	CodeRealmNameEmpty   Code = "REALM_NAME_EMPTY"
	CodeRealmNameInvalid Code = "REALM_NAME_INVALID"

	// Authentication session errors
	CodeSessionMismatch          Code = "SESSION_MISMATCH"
	CodeSessionExpired           Code = "SESSION_EXPIRED"
	CodeSessionInvalidTransition Code = "SESSION_INVALID_TRANSITION"

	// Credential errors
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUserStoreTimeout   Code = "USER_STORE_TIMEOUT"

	// WebAuthn policy errors
	CodePolicyInvalidValue Code = "WEBAUTHN_POLICY_INVALID_VALUE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeRealmNameEmpty,
		CodeRealmNameInvalid,
		CodePolicyInvalidValue:
		return http.StatusBadRequest

	case CodeInvalidCredentials:
		return http.StatusUnauthorized

	case CodeSessionMismatch,
		CodeSessionExpired,
		CodeSessionInvalidTransition:
		return http.StatusConflict

	case CodeRealmNotFound,
		CodeNotFound:
		return http.StatusNotFound

	case CodeUserStoreTimeout:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
