// Package source defines the pull-based frame source contract consumed by
// streaming sessions, plus portable sources that need no capture device.
package source
