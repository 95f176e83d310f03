// Package events defines the simulator events emitted on the event bus.
//
// Available event types:
//   - ConnectionEvent: supervisor state transition
//   - BootEvent: BootNotification outcome
//   - StatusEvent: connector status change
//   - TransactionEvent: transaction start or stop
//   - LimitEvent: recomputed effective charging limit
//   - SampleEvent: emitted meter values
package events
