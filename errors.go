package usbserial

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound    = errors.New("usb device not found")
	ErrDeviceUnavailable = errors.New("usb device could not be opened")
	ErrInvalidBaudRate   = errors.New("invalid baud rate")
	ErrInvalidConfig     = errors.New("invalid serial configuration")
	ErrPortClosed        = errors.New("serial port is closed")
	ErrPortNotOpen       = errors.New("serial port is not open")
	ErrInvalidPortIndex  = errors.New("driver has no port at index")

	// Permission errors
	ErrPermissionDenied  = errors.New("permission denied accessing usb device")
	ErrPermissionPending = errors.New("usb permission requested, retry connect once granted")
	ErrPermissionTimeout = errors.New("timeout waiting for usb permission")

	// Session errors
	ErrUnknownEndpoint = errors.New("endpoint is not part of the latest scan")
	ErrNotConnected    = errors.New("endpoint is not connected")
	ErrOpenTimeout     = errors.New("timeout opening serial port")
	ErrManagerClosed   = errors.New("session manager is closed")

	// Ingestion errors
	ErrEmptyChunk      = errors.New("empty data chunk")
	ErrListenerStarted = errors.New("io manager already started")
)
