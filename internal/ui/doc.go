// Package ui implements a terminal queue watcher using bubbletea's Elm architecture.
//
// [WatchModel] shows the stored queue of one identity and the change events received for it.
// Events only announce a new revision; each one triggers a fresh read through [QueueReader],
// so a dropped event costs freshness, never correctness.
//
// The model implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// Keyboard navigation uses vim-style bindings (j/k, r, q) with contextual help from charmbracelet/bubbles/help.
package ui
