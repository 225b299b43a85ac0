// Package auth manages first-party user accounts: registration, Argon2id
// credential hashing, and password verification.
//
// The OAuth layer leans on this package twice: the direct grant
// authenticates users through it, and client secrets are hashed and
// verified with the same Argon2id construction as passwords.
package auth
