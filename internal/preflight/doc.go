// Package preflight provides readiness checks for the filesystem paths and
// external binaries shuttle depends on.
//
// The daemon runs RunAll before accepting missions and logs every failing
// check; the CLI "shuttle status --local" command renders the same results.
package preflight
