// Package queue provides the unbounded hand-off buffer used between the
// dispatcher and slower consumers such as subscription readers and the
// database writer.
//
// Send never blocks: the buffer doubles its capacity instead.
package queue
