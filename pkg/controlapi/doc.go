// Package controlapi is the Control API C4 describes: an HTTPS server
// with mutual TLS that accepts ad-hoc job submissions and schedule
// refresh signals. The redesign note in spec §9 calls for the process
// boundary to become a goroutine and a channel instead of a real
// subprocess and pipe; that channel is exposed here as Messages.
package controlapi
