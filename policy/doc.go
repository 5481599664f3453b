// Package policy maps a resource sample to a target worker count. The
// policy is a pure function with single-step hysteresis: sustained pressure
// above the high watermarks shrinks the pool by one worker per decision,
// head-room below the low watermarks grows it by one, and the band in
// between holds steady so that noisy instantaneous samples do not cause
// oscillation.
package policy
