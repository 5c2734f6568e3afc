// Package accessunit packages demuxed NAL units as length-prefixed access
// units (AVC1 framing: a 4-byte big-endian length before each unit) and
// retains the latest SPS, PPS and IDR so that a decoder joining mid-stream
// can be bootstrapped.
package accessunit
