// Package tlsroots provides TLS material for the admin HTTP endpoint.
//
// CertReloader serves a certificate pair and reloads it when either file
// changes, so renewals need no restart. ClientConfig builds the client
// side trust for votifier-cli from an optional CA bundle.
package tlsroots
