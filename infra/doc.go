// Package infra holds the adapters behind the core interfaces: the Tesla
// client, telemetry sources, metrics sinks, the MQTT bridge and reports.
package infra
