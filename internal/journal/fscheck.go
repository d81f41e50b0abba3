package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// validateSQLiteFilesystem refuses journal paths on network filesystems,
// where SQLite locking is unreliable. Undetectable filesystems are allowed.
func validateSQLiteFilesystem(path string) error {
	return checkFilesystem(path, detectFilesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}

	fsType, err := detect(inspectPath)
	if err != nil {
		if errors.Is(err, errUnsupportedPlatform) {
			return nil
		}
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if _, remote := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; remote {
		return fmt.Errorf("journal path %q is on network filesystem %q; set journal.path to local disk", path, fsType)
	}
	return nil
}

var errUnsupportedPlatform = errors.New("filesystem detection is unsupported on this platform")

// nearestExistingPath walks up from path to the first component that exists.
func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}
