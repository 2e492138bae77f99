/*
Package log provides structured logging for cutover using zerolog.

A single global logger is initialized once via Init and shared by all
packages. Child-logger helpers attach the fields that matter for deployments:
component, service, deployment ID, and environment color. JSON output is
intended for CI log capture; console output for interactive runs.

The phase transitions emitted through this logger form the structured
deployment log consumed by operators after a run.
*/
package log
