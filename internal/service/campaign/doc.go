// Package campaign implements the operator-facing campaign operations that
// feed or inspect the dispatch scheduler.
//
// The service layer validates schedules at input time (the scheduler assumes
// validated shapes), flips campaign status, attaches target leads, resets
// failed or skipped leads for retry, and reads stats back. It depends on the
// repository interface defined in this package and never touches the
// database directly.
//
// Repository implementations live in repository/postgres/.
package campaign
