// Package events defines the charging events emitted on the event bus.
//
// Available event types:
//   - StatusEvent: one control iteration (power flow, buffer, charger)
//   - CommandEvent: a command sent to the vehicle and its outcome
//   - SafetyEvent: a safety timer tripped
//   - SessionEvent: a control session started or ended
//   - TripStageEvent: the trip planner changed stage
//   - StatsEvent: periodic battery and grid statistics
package events
