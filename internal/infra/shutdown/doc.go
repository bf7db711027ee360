// Package shutdown coordinates process termination.
//
// SIGINT and SIGTERM (or Trigger) run the registered hooks in reverse
// order of registration under one timeout. SIGHUP runs the reload hooks
// without stopping.
package shutdown
