// Package security loads process-wide TLS material (CA, host
// certificate/key, combined PEM) from a well-known directory and builds
// the mutual-TLS configs used by the Control API server and the broker
// client. Certificate issuance is out of scope; this package only
// consumes material provisioned ahead of time.
package security
