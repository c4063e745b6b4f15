// Package grpc serves the standard gRPC health service. The status is
// SERVING while at least one credential source can serve requests.
package grpc
