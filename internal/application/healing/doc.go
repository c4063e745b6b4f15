// Package healing implements the retry state machine applied to every node
// output.
//
// A failed output is routed to the healer node while the run's retry budget
// lasts. Once the budget is spent the failure is reported as EXHAUSTED and
// the caller terminates that branch.
package healing
