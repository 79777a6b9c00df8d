package images

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

const (
	// DefaultTag is applied when a reference carries no tag.
	DefaultTag = "latest"

	officialNamespace = "library/"
)

// Ref is a user-supplied image reference split into the forms the engine and
// the registry expect.
//
// Examples:
//   - "redis"         -> FullyQualifiedName "library/redis:latest", FileName "redis.tar"
//   - "myorg/app:1.2" -> FullyQualifiedName "myorg/app:1.2", FileName "myorg_app_1.2.tar"
type Ref struct {
	Raw                string
	Name               string
	Tag                string
	IsOfficial         bool
	FullyQualifiedName string
	Repository         string
	FileName           string
}

var fileNameReplacer = strings.NewReplacer("/", "_", ":", "_")

// Parse normalizes a non-empty image reference. It never fails; use Validate
// to reject references the engine would not accept.
func Parse(raw string) Ref {
	name, tag, _ := strings.Cut(raw, ":")
	if tag == "" {
		tag = DefaultTag
	}

	ref := Ref{
		Raw:                raw,
		Name:               name,
		Tag:                tag,
		IsOfficial:         !strings.Contains(name, "/"),
		FullyQualifiedName: raw,
		Repository:         name,
		FileName:           fileNameReplacer.Replace(raw) + ".tar",
	}
	if ref.IsOfficial {
		ref.Repository = officialNamespace + name
		ref.FullyQualifiedName = ref.Repository + ":" + tag
	}
	return ref
}

// ParseAndValidate parses raw and checks that the result is a well-formed
// reference.
func ParseAndValidate(raw string) (Ref, error) {
	if strings.TrimSpace(raw) == "" {
		return Ref{}, ErrNameRequired
	}
	ref := Parse(raw)
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// Validate checks the fully qualified name against the distribution
// reference grammar.
func (r Ref) Validate() error {
	if r.Raw == "" {
		return ErrNameRequired
	}
	if _, err := reference.ParseNormalizedNamed(r.FullyQualifiedName); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidName, r.Raw, err)
	}
	return nil
}

// Tagged returns the repository with its tag always spelled out, for example
// "library/redis:latest" or "myorg/app:latest". The engine treats a bare
// repository name as every local tag of it, so engine calls use this form.
func (r Ref) Tagged() string {
	return r.Repository + ":" + r.Tag
}

// ShortTagged is Tagged without the library/ namespace, the name an official
// image is usually tagged with locally.
func (r Ref) ShortTagged() string {
	return r.Name + ":" + r.Tag
}

// String returns the fully qualified name.
func (r Ref) String() string {
	return r.FullyQualifiedName
}
