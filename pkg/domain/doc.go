// Package domain holds the types shared by every layer of the execution core:
// the shared workflow state, node outputs, concurrency policy, credential
// entries, resource snapshots, events and the error taxonomy.
package domain
