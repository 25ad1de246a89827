// Package defaults provides the files written by "chatrelay config init".
package defaults

import _ "embed"

//go:embed context.txt
var contextFile []byte

// ContextFile returns the starter system context.
func ContextFile() []byte {
	return contextFile
}
