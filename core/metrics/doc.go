// Package metrics defines the sinks that observe the market: clearings,
// tariff transitions, balancing control and rejected messages. Sinks are
// built from configuration through the factory registry; optional recorder
// interfaces let a sink opt into the event families it supports.
package metrics
