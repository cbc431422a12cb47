// Package session owns the identity-provider client lifecycle for the
// Azure AD code-redirect flow.
//
// # Lifecycle
//
// A Manager starts Uninitialized. Configure with a complete configuration
// discovers the tenant authority ({base}/{tenant}/v2.0), builds the OAuth2
// client and verifier, rehydrates any persisted user from the local cache,
// and settles Ready. Configure with an incomplete configuration settles
// Ready signed-out without touching the network; that is a valid quiescent
// state, not an error.
//
// # Events
//
// Consumers subscribe to one typed stream instead of registering separate
// callbacks:
//
//	sub := manager.Subscribe()
//	defer sub.Close()
//	for ev := range sub.C {
//		switch ev.Kind {
//		case session.EventUserLoaded: ...
//		case session.EventUserUnloaded: ...
//		case session.EventRenewError: ...
//		}
//	}
//
// The enrichment pipeline is driven entirely from this stream; its failures
// can never reach back into session state.
//
// # Silent renewal
//
// A goroutine refreshes the token shortly before expiry. Renewal failure is
// published as EventRenewError and recorded, but the stale user is kept:
// protected routes keep treating it as authenticated until its own expiry.
package session
