/*
Package types defines the core domain entities shared across cutover packages.

The entities mirror the external systems they describe: Environment and
ServiceStatus track the compute platform's view of each color, RoutingState
tracks the load balancer's default rule (the single source of truth for which
color is live), and Deployment carries the append-only phase log for one
pipeline run. HealthCheckResult and RollbackRecord are the audit artifacts
produced by the health gate and rollback manager.
*/
package types
