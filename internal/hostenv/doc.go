// Package hostenv delivers host network and lifecycle signals as discrete notifications.
//
// Sources:
// - Notifier: in-process fan-out, also the injection point for operator-triggered signals
//
// - ProcessWatcher: OS termination signals -> before-terminate
//
// - NetWatcher: interface polling -> network-restored / network-lost on transitions only
//
// Consumers hold a Source and own the cancel func returned by Subscribe.
package hostenv
