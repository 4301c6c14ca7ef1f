// Package session issues, validates and terminates login sessions for the
// registration forms service.
//
// A user may hold at most MaxSessions concurrently valid sessions. Admitting a new
// session evicts the oldest ones (by creation time, not last use) until the new one
// fits. Sessions expire a fixed TTL after creation; activity never extends them.
//
// All persistence goes through Store. Admission runs inside Store.WithUserLock so
// concurrent logins for the same user cannot overshoot the limit.
package session
