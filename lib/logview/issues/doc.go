// Package issues models connection issues of log-view adaptors and computes retry delays.
//
// A connection issue is created on the first failure of an operation (reading the primary,
// writing to the primary, sending a notification), updated on every further failure and resolved
// on the first success. While an issue exists, the next retry is delayed by ComputeRetryDelay:
// the first retry happens immediately, later retries grow by roughly 50% each until they reach a
// slow polling interval of about ten seconds. Retries never stop.
//
// A Recorder tracks the issue of one operation and informs an optional IListener whenever an
// issue is recorded or resolved.
package issues
