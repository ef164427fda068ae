// Package api exposes the dispatcher over HTTP. The surface mirrors the
// dispatcher's operations one to one: submit a workflow, inspect dispatch and
// task status, fetch or wait for results, cancel, and purge. Health and
// Prometheus scrape endpoints ride on the same listener.
package api
