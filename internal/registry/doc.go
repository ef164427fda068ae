// Package registry is the central mapping between the unit names used in
// workflow definitions and the compiled Go handlers that implement them.
//
// Handlers are registered explicitly at startup (there is no reflective
// plugin discovery), so an unknown unit name is caught at submission time,
// before anything executes.
package registry
