// Package recovery implements the range-server recovery coordinator
// (spec.md §4.13): when the Master detects a dead range server, a
// Coordinator carries a recovery plan through issue, load, replay,
// prepare and commit, fanning each phase out across the replayer and
// receiver servers it names. A Replayer reads a dead server's commit
// log fragments and routes their cells to the receivers now owning
// each range; a Receiver tracks each range's recovery progress with a
// PhantomRangeMap and only makes a range live once it is committed.
package recovery
