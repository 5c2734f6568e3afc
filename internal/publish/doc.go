// Package publish sends a recorded H.264 Annex B elementary stream to an
// ingest server in real time, one frame per frame interval. It is the
// client side of the transports in package ingest and is used for testing
// and demos.
package publish
