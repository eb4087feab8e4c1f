package session

import "errors"

var ErrNoSession = errors.New("no capture session has been started")
