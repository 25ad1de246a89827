package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"chatrelay/pkg/logger"
)

// LoadContext reads the system context from path and trims surrounding
// whitespace. A missing or unreadable file yields an empty context.
func LoadContext(path string) string {
	text, err := readContext(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("System context unavailable, continuing without it")
		return ""
	}

	logger.Debug().
		Str("path", path).
		Int("chars", len([]rune(text))).
		Str("preview", logger.Preview(text)).
		Msg("System context loaded")
	return text
}

func readContext(path string) (string, error) {
	if path == "" {
		return "", ErrMissingContext
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissingContext, path)
		}
		return "", fmt.Errorf("read context: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
