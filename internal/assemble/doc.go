// Package assemble turns a mission's downloaded segment files into the final
// output file.
//
// Parts are always ordered by segment index. The ffmpeg assembler feeds a
// concat demuxer manifest to ffmpeg and stream-copies unless encode options
// are present. The concat assembler appends files directly and is used when
// ffmpeg is unavailable. Both write to a hidden partial file and rename it
// into place, then remove the parts unless asked to keep them.
package assemble
