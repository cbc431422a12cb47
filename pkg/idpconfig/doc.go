// Package idpconfig resolves the Azure AD parameters (client id, tenant,
// optional secret) that the session manager is constructed from.
//
// # Resolution order
//
// The durable store is the source of truth: the newest azure_creds row wins
// and is mirrored write-through into the local cache. When the store is
// unreachable or empty the cached mirror answers instead, tagged as
// Source "local". With neither populated, Load returns ErrNotFound and the
// route guard sends the user to the configuration screen.
//
//	cfg, source, err := store.Load(ctx)
//
// # Saving
//
// Save writes the cache first and the database second; a failed durable
// write downgrades to a warning since locally-saved values are enough to
// gate the client. Writes to azure_creds are insert-only.
//
// Resolve bounds the initial load so a slow database cannot hang startup;
// past the bound the cached values are used and a notification is emitted.
package idpconfig
