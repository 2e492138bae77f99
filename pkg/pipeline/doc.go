// Package pipeline drives a complete blue/green deployment from a single
// entry point. A run walks the state machine below, persisting every
// transition and emitting events along the way:
//
//	resolving
//	    │
//	deploying_standby ──────────────► failed
//	    │
//	pre_switch_health_check ────────► failed
//	    │
//	switching ──────────┐
//	    │               │
//	post_switch_health_check         rolling_back
//	    │               │                │
//	promoted            └──────────► rolled_back / failed
//
// Failures before the switch never touch live traffic. Failures after the
// switch trigger an automatic rollback to the previous active color. Only
// one run per service may be in flight at a time.
package pipeline
