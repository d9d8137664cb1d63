// Package lockout tracks failed authentication attempts per identifier
// and enforces temporary lockout once a threshold is reached.
//
// State lives behind the injectable [Store] interface: [MemoryStore]
// for single-process deployments, [RedisStore] when more than one
// worker must observe the same counters. Both linearize the
// increment/compare per identifier so concurrent failures can never
// bypass the threshold.
package lockout
