// Package ctyutil converts between cty values, native Go values, and JSON.
// Workflow arguments are carried as cty.Value end to end; module handlers and
// the HTTP API use these helpers at the edges.
package ctyutil
