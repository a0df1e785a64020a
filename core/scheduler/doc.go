// Package scheduler drives the per-timeslot activation of the market
// subsystems. Activations run in ascending phase order and a failure in one
// phase never prevents the later phases from running.
package scheduler
