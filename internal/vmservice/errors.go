package vmservice

import "errors"

// ErrDialFailed is returned when the WebSocket connection to the VM service
// cannot be established.
var ErrDialFailed = errors.New("failed to connect to VM service")

// ErrConnectionClosed is returned by calls made on a closed connection, and
// by calls that were in flight when the connection dropped.
var ErrConnectionClosed = errors.New("VM service connection closed")

// ErrNoIsolates is returned when the target VM reports no running isolates.
var ErrNoIsolates = errors.New("no isolates running in target VM")

// ErrEmptyTree is returned when the widget inspector responds without a root
// node, which happens before the first frame has been rendered.
var ErrEmptyTree = errors.New("inspector returned an empty widget tree")

// ErrDriverFailure is returned when the Flutter driver extension executes a
// command and reports an error, for example a tap on a widget that is not
// hit-testable.
var ErrDriverFailure = errors.New("driver command failed")
