// Package models defines the queue synchronization data model.
//
// The package contains two categories of types:
//
// 1. Persistent records, owned by the queue store:
//   - [QueueRecord] : one playback queue per identity, with an opaque state document, a revision and an update timestamp
//
// 2. Transport and presentation types:
//   - [QueueChange] : the change event published on the side channel after a successful write
//   - [QueueSnapshot] : a typed view of the conventional state fields, used only for display
//
// The store and the notification path never decode [QueueRecord.State]; it is validated as JSON and passed through byte-for-byte.
package models
