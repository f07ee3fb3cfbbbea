// Package textutil provides filename and token sanitization for mission names
// and output formats.
package textutil
