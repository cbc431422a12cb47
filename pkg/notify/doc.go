// Package notify carries transient user-visible notifications.
//
// Sign-in failures and configuration fallbacks surface to the user as
// toasts; everything else in the auth subsystem is log-only. Components
// accept a Notifier so tests can pass notify.NopNotifier{}.
package notify
