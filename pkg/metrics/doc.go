/*
Package metrics exposes Prometheus metrics for cutover.

Collectors are package-level and registered in init; the deploy command can
expose them via Handler for the duration of a pipeline run so CI agents or a
local Prometheus can scrape deployment outcomes, phase durations, probe
latency, and rollback counts.
*/
package metrics
