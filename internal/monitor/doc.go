// Package monitor samples host CPU and memory, classifies load into a tier
// and recommends a concurrency limit for the scheduler.
//
// Every call samples afresh; nothing is cached between calls.
package monitor
