// Package detect implements the speech segmentation state machine: a
// two-state onset/offset automaton polled on a short fixed tick, with
// preroll capture, silence-timeout endpointing and a minimum-length filter.
package detect
