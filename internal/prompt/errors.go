// Package prompt loads the system context and assembles the message list
// sent to the model for each exchange.
package prompt

import "errors"

// ErrMissingContext indicates that the system context file does not exist.
// It is logged, never returned to callers of LoadContext.
var ErrMissingContext = errors.New("prompt: context resource missing")
