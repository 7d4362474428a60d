// Package docker reads published host ports from the local Docker daemon
// so they can be imported into a jar.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Mapping running containers' public port bindings to reservations
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
