// Package room owns the lifecycle of one live media room session.
//
// Ownership boundary:
// - connect / reconnect / disconnect of the single active session
//
// - retry policy for error-terminated sessions (RetryGovernor)
//
// - translation of host signals and the signaling watchdog into controller actions
//
// - ordered fan-out of lifecycle and telemetry events (Sink)
//
// Transition order:
// - closed -> connecting -> connected -> (disconnected | connecting | closed)
//
// - two error-terminated sessions inside the retry window end in disconnected.
//
// - only the most recently started connect attempt may install a session.
//
// Room does not own the transport; it only holds the handle the transport returns.
package room
