// Package control implements the solar surplus charging loop.
//
// A Loop runs one Session at a time. Each iteration reads site telemetry,
// adds the adaptive grid Buffer, lets the Calculator turn the resulting power
// delta into an amps command, feeds the Safety timers and asks the Scheduler
// how long to sleep. The Planner sequences sessions to reach a target state
// of charge before a departure time.
package control
