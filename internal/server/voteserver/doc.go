// Package voteserver accepts vote connections over TCP.
//
// Each accepted connection gets its own goroutine, a keystore snapshot and a
// fresh challenge. The server writes the greeting, feeds inbound bytes to a
// session.Session and acts on the result: a delivered vote goes to the
// Dispatcher, any other outcome is reported through ReportError. Either way
// the connection is closed.
package voteserver
