// Package token persists the single Google Calendar OAuth credential.
//
// A TokenRecord lives under one storage key (StorageKey) in a Storage
// backend. Backends are interchangeable: MemoryStorage for tests,
// FileStorage under the XDG data directory, SQLStorage for SQLite or
// Postgres, and BadgerStorage for an embedded key-value store. Any of
// them can be wrapped by EncryptedStorage to keep the record encrypted
// at rest with AES-256-GCM.
//
// The Store type layers token semantics on top of a backend:
//
//	store := token.NewStore(token.NewMemoryStorage())
//	rec, err := store.StoreToken(ctx, token.TokenResponse{AccessToken: "...", ExpiresIn: 3600})
//	if store.IsTokenExpired(rec) { ... }
//
// Malformed records are treated as absent and logged at warn level.
package token
