// Package queue holds pending utterances in priority order.
// It is bounded, and when full it displaces at most one lower-priority item
// to make room for a more important one.
package queue
