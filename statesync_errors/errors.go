// Provides common statesync errors definitions.
package statesync_errors

import "errors"

var (
	ErrRefUnknown   = errors.New("statesync: unknown refId")
	ErrTypeUnknown  = errors.New("statesync: unknown type id")
	ErrFieldIndex   = errors.New("statesync: unknown field index")
	ErrBadOperation = errors.New("statesync: unknown operation")
	ErrFieldType    = errors.New("statesync: value does not match the field type")
	ErrNotAField    = errors.New("statesync: no such field")
	ErrBadHandshake = errors.New("statesync: bad handshake")
	ErrNoSerializer = errors.New("statesync: state received before the handshake")
	ErrBadFrame     = errors.New("statesync: bad room frame")
	ErrClosed       = errors.New("statesync: room is closed")
	ErrNoSession    = errors.New("statesync: unknown journal session")
)
