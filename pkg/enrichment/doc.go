// Package enrichment turns a freshly signed-in identity into a persisted
// profile.
//
// The pipeline runs off the session event stream, never on the sign-in
// path: claims are merged with a Microsoft Graph lookup (profile plus
// optional photo, stored through blob.Store), upserted into user_info, and
// only then is the internal-API stage deferred onto the task queue. The
// internal stage walks an ordered transport chain: the same-origin proxy
// path first, the server-side function second. A 2xx proxy response whose
// body is HTML counts as a failure; misconfigured proxies serve the SPA
// shell with a success status.
//
// Every stage failure is absorbed where it happens. A fully failed run
// leaves the user signed in with a thinner profile row.
package enrichment
