package errors

import "fmt"

var (
	ErrNotFound          = fmt.Errorf("message not found")
	ErrInvalidTransition = fmt.Errorf("invalid message transition")
	ErrEmptyText         = fmt.Errorf("message text is empty")
	ErrConnClosed        = fmt.Errorf("connection closed")
	ErrSendBufferFull    = fmt.Errorf("connection send buffer full")
	ErrNotRegistered     = fmt.Errorf("connection has no registered user")
	ErrUnknownEvent      = fmt.Errorf("unknown event")
	ErrUnknownDriver     = fmt.Errorf("unknown store driver")
)
