// Package auth verifies bearer tokens and enforces scopes for the admin API.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM key or a
// JWKS endpoint). Claims carry a subject, roles (viewer, admin) and scopes:
// read lists folders, control adds, syncs and deletes them, events opens the
// live update stream.
package auth
