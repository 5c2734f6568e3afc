// Package pacer delivers a source's samples to a consumer at the source's
// frame rate.
//
// A [Dispatcher] runs a self-rescheduling tick on a [DispatchQueue]. Each
// tick waits until the wall clock catches up with the current sample's
// synthetic timestamp, hands the sample to the registered [SampleHandler],
// advances the source and submits the next tick. The dispatcher's lock is
// never held while sleeping, and Stop interrupts the sleep.
package pacer
