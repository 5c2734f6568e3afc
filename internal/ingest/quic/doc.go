// Package quic implements a QUIC ingest listener. Publishers connect with
// ALPN "nalpace" and send the elementary stream as unreliable datagrams;
// each datagram becomes one chunk. Only one publisher is read at a time.
package quic
