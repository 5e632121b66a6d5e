// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import "testing"

func TestValidateID_Valid(t *testing.T) {
	valid := []string{"abc123", "AbCdEf-_012345"}
	for _, id := range valid {
		if err := validateID(id); err != nil {
			t.Errorf("validateID(%q) = %v, want nil", id, err)
		}
	}
}

func TestValidateID_RejectsTraversal(t *testing.T) {
	invalid := []string{"", "..", ".", "../../etc/passwd", "a/b", "a\\b", "a\x00b", ".hidden"}
	for _, id := range invalid {
		if err := validateID(id); err == nil {
			t.Errorf("validateID(%q) = nil, want an error", id)
		}
	}
}
