// Package compressor implements a resource-adaptive batch video compression
// engine. A job compresses every video found in an input folder into a set
// of quality profiles; the scheduler continuously samples host CPU and
// memory utilisation and grows or shrinks the encoding worker pool one step
// at a time to keep the machine inside configured watermarks.
//
// The engine is wired from narrow collaborators - discovery (input
// enumeration and probing), encoder (ffmpeg invocation), sampler (host
// metrics) and reporter (state-change events) - all replaceable through
// functional options.
package compressor
