package tgui

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes, counted
// over the whole "group:action:payload" string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "group:action[:payload]". It fails
// when the result exceeds Telegram's callback_data limit.
func Data(group, action, payload string) (string, error) {
	group = strings.TrimSpace(group)
	action = strings.TrimSpace(action)
	s := group + ":" + action
	if payload != "" {
		s += ":" + payload
	}
	if len(s) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(s))
	}
	return s, nil
}
