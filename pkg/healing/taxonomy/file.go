/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package taxonomy

import (
	"os"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

func loadBytes(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cherrors.FailedToWithDetails("read taxonomy file", "taxonomy", path, err)
	}
	return raw, nil
}
