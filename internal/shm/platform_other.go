//go:build !unix

/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"context"
	"errors"
)

// MapRegion is not implemented on this platform.
func MapRegion(_ context.Context, _ MapOptions) (*MappedRegion, error) {
	return nil, errors.ErrUnsupported
}

// UnmapRegion is not implemented on this platform.
func UnmapRegion(_ context.Context, _ *MappedRegion) error {
	return errors.ErrUnsupported
}

// RemoveRegion is not implemented on this platform.
func RemoveRegion(_ MapOptions) error {
	return errors.ErrUnsupported
}
