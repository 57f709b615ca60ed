// Package circuitbreaker guards a downstream dependency with an
// admission-gating circuit: recent request outcomes feed a pluggable
// Policy, and once the policy judges the dependency unhealthy the
// circuit trips for a fixed cooldown before admitting new work again.
package circuitbreaker
