// Package server assembles the auth service: storage, the login session
// flow, token minting, and the HTTP surface.
package server
