// Package demux turns a raw H.264 Annex B byte stream into NAL units.
//
// The central type is [Demuxer], which accepts the stream in arbitrary
// chunks as they arrive from the network and emits each unit once the start
// code that terminates it has been seen. [ParseAnnexB] handles buffers that
// are known to be complete, [ParseSPS] summarizes parameter sets for
// diagnostics, and [CaptionInspector] decodes CEA-608 captions found in SEI
// units.
package demux
