// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracking

import (
	"fmt"
	"strconv"
	"strings"

	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// ArtifactRef names one artifact version:
//
//	<entity>/<project>/<name>:v<N>
//	<entity>/<project>/<name>:latest
//
// Entity and project may be omitted; a Session fills them from its own
// namespace.
type ArtifactRef struct {
	Entity  string
	Project string
	Name    string
	Version int
	Latest  bool
}

// String formats the reference.
func (r ArtifactRef) String() string {
	var sb strings.Builder
	if r.Entity != "" {
		sb.WriteString(r.Entity)
		sb.WriteByte('/')
	}
	if r.Project != "" {
		sb.WriteString(r.Project)
		sb.WriteByte('/')
	}
	sb.WriteString(r.Name)
	if r.Latest {
		sb.WriteString(":latest")
	} else {
		fmt.Fprintf(&sb, ":v%d", r.Version)
	}
	return sb.String()
}

// ParseArtifactRef parses a reference. A missing alias means latest.
func ParseArtifactRef(s string) (ArtifactRef, error) {
	invalid := func(msg string) error {
		return &runchainerrors.ValidationError{
			Field:   "artifact",
			Message: fmt.Sprintf("%q: %s", s, msg),
			Hint:    "References look like <entity>/<project>/run-<id>-checkpoint:v<N>",
		}
	}

	var ref ArtifactRef
	path, alias, hasAlias := strings.Cut(s, ":")
	if !hasAlias || alias == "latest" {
		ref.Latest = true
	} else {
		if !strings.HasPrefix(alias, "v") {
			return ArtifactRef{}, invalid("alias must be v<N> or latest")
		}
		v, err := strconv.Atoi(alias[1:])
		if err != nil || v < 0 {
			return ArtifactRef{}, invalid("bad version " + alias)
		}
		ref.Version = v
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		ref.Name = parts[0]
	case 2:
		ref.Project, ref.Name = parts[0], parts[1]
	case 3:
		ref.Entity, ref.Project, ref.Name = parts[0], parts[1], parts[2]
	default:
		return ArtifactRef{}, invalid("too many path segments")
	}

	for _, part := range parts {
		if part == "" {
			return ArtifactRef{}, invalid("empty path segment")
		}
	}

	return ref, nil
}

// ValidateArtifactName rejects names that cannot round-trip through a
// reference.
func ValidateArtifactName(name string) error {
	if name == "" || strings.ContainsAny(name, "/:") {
		return &runchainerrors.ValidationError{
			Field:   "artifact.name",
			Message: fmt.Sprintf("invalid artifact name %q", name),
		}
	}
	return nil
}

// NotFound returns the error stores use for missing runs, artifacts
// and files.
func NotFound(resource, id string) error {
	return &runchainerrors.NotFoundError{Resource: resource, ID: id}
}
