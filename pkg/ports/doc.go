// Package ports defines the interfaces between the execution core and its
// adapters: backends, nodes, storage, event bus, metrics and samplers.
package ports
