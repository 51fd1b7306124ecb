// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xerrors reconstructs the small error-joining helper the teacher
// imports as "github.com/samber/ro/internal/xerrors" — that package was not
// present in the retrieved example pack, so its narrow surface (join
// multiple recovered-panic errors; turn a recover() value into an error) is
// rebuilt here in the same spirit.
package xerrors

import (
	"errors"
	"fmt"
)

// Join wraps errors.Join, giving callers in this module a single import
// path to depend on regardless of which standard library helper backs it.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverToError converts a recover() value into an error. If the value is
// already an error, it is returned as-is; otherwise it is formatted.
func RecoverToError(r any) error {
	if r == nil {
		return nil
	}

	if err, ok := r.(error); ok {
		return err
	}

	return fmt.Errorf("%v", r)
}
