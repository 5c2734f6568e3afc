// Package sink provides consumers for paced samples: a recorder that writes
// a replayable dump and a logger that summarizes each sample.
package sink
