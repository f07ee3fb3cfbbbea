// Package logs reads the daemon log file for the CLI.
//
// Last returns the trailing lines of a file with bounded memory, and Follow
// polls from an offset until its context ends. A file that shrinks below the
// saved offset is treated as rotated and read again from the start. Both accept
// a Match filter so `shuttle logs --mission <uid>` can narrow output to one
// mission's records.
package logs
