// Package daemon coordinates the long-running shuttle process.
//
// It wires configuration, mission storage, and the scheduler into a single
// lifecycle with flock-based locking to prevent multiple instances, and
// serves the HTTP API the CLI talks to. Startup re-admits missions left
// waiting or downloading by a previous run; shutdown halts transfers without
// marking them stopped so the next start picks them up again.
//
// Keep orchestration logic here: download and admission behaviour live in
// their own packages while the daemon focuses on startup, shutdown, and the
// transport surface.
package daemon
