package room

import "errors"

var (
	ErrTransportRequired = errors.New("room: transport required")
	ErrNoCredential      = errors.New("room: no token stored, connect first")
	ErrConnectFailed     = errors.New("room: connect attempt produced no session")
	ErrDisposed          = errors.New("room: controller disposed")
)
