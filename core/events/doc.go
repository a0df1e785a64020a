// Package events defines the market events emitted on the event bus.
//
// Available event types:
//   - ClearingEvent: one timeslot cleared by the auction
//   - TariffEvent: tariff lifecycle transition
//   - BalancingEvent: regulation exercised against a tariff
//   - RejectionEvent: broker message refused
package events
