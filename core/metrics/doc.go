// Package metrics defines the sinks that record charging events. A sink must
// record iteration status; command, safety, session, trip and stats events
// are recorded by sinks implementing the matching optional recorder. The
// factory returns a MultiSink when several sinks are configured.
package metrics
