package domain

import "errors"

// Sentinel error kinds surfaced to the supervisor as a single wire
// token. Callers wrap these with fmt.Errorf("%w: %v", ...) to attach
// context; the supervisor layer maps the sentinel back to its wire
// string.
var (
	ErrDeviceIDNotFound       = errors.New("device id not found")
	ErrTagNotFound            = errors.New("tag not found")
	ErrTagNotWriteable        = errors.New("tag not writeable")
	ErrConfigError            = errors.New("config error")
	ErrEmptySession           = errors.New("empty session")
	ErrWriteFail              = errors.New("write failed")
	ErrOpcReject              = errors.New("opc reject")
	ErrHostClose              = errors.New("host close")
	ErrSubscriptionTerminated = errors.New("subscription terminated")
	ErrRestartOnChangeParams  = errors.New("restart on change params")
)
