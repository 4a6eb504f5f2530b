// Package session implements the per-viewer streaming session and the
// shared registry of live sessions.
//
// A session owns one accepted connection. It writes the stream header, then
// repeatedly sleeps for the frame interval, pulls the next frame from its own
// source cursor and writes it. Any failure closes the connection and removes
// the session from the registry exactly once.
package session
