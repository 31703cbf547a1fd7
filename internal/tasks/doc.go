// Package tasks composes the queue store and the side channel into the [QueueService] facade.
//
// # Write Path
//
//  1. [QueueService.UpdateQueue] hands the write to the store, whose revision-gated update
//     either commits or fails with [shared.ErrRevisionConflict].
//  2. Only a committed write reaches the [Notifier]. [NotificationDispatcher] publishes a
//     [models.QueueChange] on the identity's channel through [services.ConnectionManager].
//  3. Whatever the notification does (skip, drop, time out, panic) the caller sees the committed record.
//
// # Heartbeat
//
// [HeartbeatMonitor] ticks for the lifetime of the service. A Live handle is probed within a timeout
// shorter than the tick, an Absent one gets a throttled reconnect. Each tick is reported as a
// [HeartbeatUpdate] on an optional channel; sends use select with default so a slow reader never
// delays the loop.
//
// # Lifecycle
//
// [QueueService.Setup] and [QueueService.Shutdown] are idempotent. Shutdown waits for the heartbeat
// before releasing the handle.
package tasks
