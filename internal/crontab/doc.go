// Package crontab parses the five-field schedule strings the
// maintenance scheduler uses to decide when a periodic task is due
// (spec.md §6.5), and computes the next matching wall-clock minute from
// a given instant.
//
// Grounded directly on original_source's Crontab.cc: the bitset-per-
// field representation, the day-of-week 7≡0 aliasing, the
// day-of-month/day-of-week OR-or-wildcard-cancels-other resolution, and
// the next_event day/hour/minute search order are all carried over
// field for field, re-expressed against Go's time.Time instead of
// struct tm/mktime.
package crontab
