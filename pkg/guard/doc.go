// Package guard gates protected routes on session and configuration state.
//
// While the session is still constructing, requests get a retryable loading
// page rather than a premature redirect. Once settled, an authenticated
// request proceeds, an errored or unauthenticated one goes to the login
// screen, and when no identity-provider configuration exists at all the
// user is sent to the setup screen instead. Admin paths bypass the session
// entirely and answer to a shared-password gate with a signed cookie.
package guard
