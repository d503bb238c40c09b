package conn

import (
	"errors"

	"github.com/HelloHaruSystem/haru-chat-web/src/registry"
)

var (
	ErrAuthRequired         = errors.New("username and token are required")
	ErrConnectionInProgress = errors.New("connection already in progress")
	ErrConnectionTimeout    = errors.New("connection timed out")
	ErrTransport            = errors.New("transport error")
	ErrAuthRejected         = errors.New("authentication rejected")
	ErrDisconnected         = errors.New("disconnected")
	ErrHandlerFailure       = registry.ErrHandlerFailure
)
