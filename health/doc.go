// Package health aggregates process liveness and shutdown state into a
// single operator-facing JSON document. The reporter is a pure read path:
// it probes, counts, and reports, and never mutates the registry or the
// shutdown machinery it observes.
package health
