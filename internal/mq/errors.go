package mq

import "errors"

// ErrNoChannel: AMQP-канал не открыт (соединение потеряно).
var ErrNoChannel = errors.New("no amqp channel available")
