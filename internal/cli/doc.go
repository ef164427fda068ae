// Package cli parses command-line arguments into an application
// configuration, validates user input, and maps failures to process exit
// codes.
package cli
