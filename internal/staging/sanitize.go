// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"fmt"
	"strings"
)

// maxIDLength bounds a staging id used as a filesystem path component. It
// is generous relative to idgen.Length so a manually-constructed id (e.g.
// one typed into a test or a curl command) is not rejected on length alone.
const maxIDLength = 255

// validateID checks that id is safe to use as a path component under the
// staging directory. Store's Manifest, WriteChunk, Complete,
// PruneChunkShards and Remove call it before any filepath.Join(baseDir, id,
// ...): an id on this path arrives verbatim from an HTTP path parameter, so
// it must never be trusted to stay within baseDir on its own. Create and
// OutputPath do not validate; the HTTP handlers reach OutputPath only after
// a validating call has accepted the same id.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("staging id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("staging id exceeds max length %d", maxIDLength)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("staging id contains a path separator")
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("staging id contains a null byte")
	}
	if id == "." || id == ".." || strings.HasPrefix(id, "..") {
		return fmt.Errorf("staging id contains path traversal")
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("staging id starts with a dot")
	}
	return nil
}
