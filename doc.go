// Package uploader implements a client-side resumable chunked upload
// protocol over HTTP: a Session transfers an arbitrary byte stream to a
// server in a sequence of bounded-size requests, recovering from transient
// failures by querying the server for its true byte cursor and resending
// only the missing tail.
package uploader
