// Package loader reads workflow definition files written in HCL and turns
// them into validated task sets ready for dispatch. A definition is one or
// more `task` blocks, optionally accompanied by a single `settings` block
// carrying run options and a cron schedule.
package loader
