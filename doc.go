// Package mysql implements the core of an asynchronous MySQL client: wire
// protocol framing and codecs, a per-connection command pipeline with
// server-side KILL QUERY cancellation, and a bounded connection pool.
//
// It does not parse SQL, cache query plans, or resolve DSNs/URIs — those
// are the job of a higher-level facade built on top of Connection and Pool.
package mysql
