// Package manage supervises the gateway's long-running workers.
//
// Every sensor loop and the liveness watchdog implement Worker. They run
// under one Supervisor, which owns the failure policy: transient exits
// restart with backoff, fatal conditions raise an AlarmEvent through the
// Dispatcher, invalid ones stop the worker and are logged. A transient
// failure that persists through the whole backoff schedule escalates to
// one alarm per outage. Failures inside a running loop arrive through
// Report and never propagate between workers.
package manage
