package githubapp

import "fmt"

// ConfigError indicates missing or unreadable credential material. It is
// fatal at startup; nothing downstream can authenticate without it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("github app config: %s", e.Reason)
}

// NotInstalledError indicates that no installation both matches the target
// repository's owner and actually grants access to the repository.
type NotInstalledError struct {
	Owner string
	Repo  string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("github app is not installed for %s/%s", e.Owner, e.Repo)
}
