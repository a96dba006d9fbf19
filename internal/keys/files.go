// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package keys

import (
	"os"
	"path/filepath"

	"github.com/toeirei/credvault/internal/logging"
)

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a half-written file.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	restrictPermissions(tmpName, mode)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// restrictPermissions applies mode to path. Failures are logged and ignored;
// on Windows only the read-only bit is honoured.
func restrictPermissions(path string, mode os.FileMode) {
	if err := os.Chmod(path, mode); err != nil {
		logging.Warnf("keys: could not restrict permissions on %s: %v", path, err)
	}
}
