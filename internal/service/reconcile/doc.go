// Package reconcile applies remote-agent task reports to durable state.
//
// The service layer folds completion and failure reports into the task, the
// campaign lead, the outbound lead, and the campaign's stats counters, and
// quarantines senders on restriction-class failures. It also owns the agent
// pull path (task pickup) and heartbeat renewal.
//
// Every mutation goes through a conditional update keyed on the current
// status, so reports replayed by a flaky agent — or racing the stale-task
// sweep — are no-ops. Repository implementations live in
// repository/postgres/.
package reconcile
