// Package srt implements an SRT (Secure Reliable Transport) ingest
// listener. The first publisher whose stream ID matches is read message by
// message; when it disconnects the listener waits for the next one.
package srt
