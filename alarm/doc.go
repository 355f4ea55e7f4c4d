// Package alarm delivers alarm events to the responsible parties.
//
// Mailer sends one plain-text mail per event over SMTP. Throttle wraps a
// dispatcher with a per-sensor minimum interval so a flapping device
// cannot flood inboxes. LogDispatcher is the fallback when no relay is
// configured. FromConfig assembles the chain the engine uses.
package alarm
