// Package mjpeg implements the multipart/x-mixed-replace framing used to push
// a sequence of JPEG images over a single TCP connection.
// It provides the stream writer used by client sessions and a reader used by
// the probe client to verify what is on the wire.
package mjpeg
