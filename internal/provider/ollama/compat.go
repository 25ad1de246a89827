package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MinVersion is the oldest Ollama server whose chat endpoint accepts the
// request shape this package sends.
const MinVersion = "0.1.14"

// ErrUnsupportedVersion is wrapped by CheckVersion for servers older than
// MinVersion.
var ErrUnsupportedVersion = fmt.Errorf("ollama server older than %s", MinVersion)

// Compatible reports whether version satisfies MinVersion. Prerelease and
// "v" prefixed versions are accepted.
func Compatible(version string) (bool, error) {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false, fmt.Errorf("invalid ollama version %q: %w", version, err)
	}
	minV := semver.MustParse(MinVersion)
	// 0.1.14-rc1 counts as 0.1.14
	core := semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
	return !core.LessThan(minV), nil
}

// CheckVersion queries the server version and verifies it. The version is
// returned even when it is too old.
func (p *OllamaProvider) CheckVersion(ctx context.Context) (string, error) {
	version, err := p.Version(ctx)
	if err != nil {
		return "", err
	}
	ok, err := Compatible(version)
	if err != nil {
		return version, err
	}
	if !ok {
		return version, fmt.Errorf("%w: got %s", ErrUnsupportedVersion, version)
	}
	return version, nil
}
