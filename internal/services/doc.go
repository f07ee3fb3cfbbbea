// Package services defines the error markers and context helpers shared by the
// scheduler, the download engine, and the daemon surfaces.
//
// Wrap tags failures with a sentinel marker so callers can classify them with
// errors.Is (validation vs resolution vs assembly, and so on) while the message
// keeps the stage and operation that produced it.
package services
