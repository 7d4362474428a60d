// Package model defines the domain types and value objects for portjar.
//
// A Reservation is a claim binding a service name (and optionally a
// protocol) to a port number. It knows how to parse itself from a single
// registry line and render itself back, and it exposes the canonical
// service slug that the registry uses as its mapping key.
//
// The package also defines the error kinds shared by the registry, the
// socket prober and the allocator, plus the exit codes (ExitCode) and the
// CLIError type the CLI uses to translate them into process exit statuses.
package model
