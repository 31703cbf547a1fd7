// Package services implements the side channel that carries queue change notifications between a user's devices.
//
// # Connection Handle
//
// [ConnectionManager] owns exactly one [Conn] and moves it between two states:
//
//	Absent --Acquire--> Live
//	Live --timeout, error or closed-check--> Absent
//	Live --Close--> Absent
//
// A connection can go "zombie": the transport still reports it open while the peer never answers.
// Every call on the handle is therefore bounded ([ConnectionManager.SendNotify] by the notify timeout,
// [ConnectionManager.Probe] by the probe timeout) and the bound holds even when the call ignores its context.
// A call that runs out of time discards the handle; nothing is retried in place.
//
// Reconnects only happen in [ConnectionManager.Acquire], which is serialized and rate limited.
//
// # Outcomes
//
// Side channel failures never surface as errors. Callers observe a [NotifyOutcome] or [ProbeOutcome]
// and the manager logs the cause.
//
// # Redis
//
// [RedisDialer] produces the production [Conn] (PUBLISH and PING on a dedicated go-redis client).
// [RedisSubscriber] is the receiving end used by watchers. Channels are named by [ChannelFor].
package services
