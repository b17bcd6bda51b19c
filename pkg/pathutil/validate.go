// Package pathutil provides identifier and path validation for the
// vibepruner work directory.
package pathutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/vibepruner/vibepruner/pkg/errclass"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateID checks a session, transaction, or rollback point identifier.
// Identifiers become file names under the work directory, so anything that
// could traverse out of it is rejected.
func ValidateID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("identifier must not be empty")
	}

	id = norm.NFC.String(id)

	if strings.Contains(id, "..") {
		return errclass.ErrNameInvalid.WithMessagef("identifier must not contain '..': %s", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("identifier must not contain separators: %s", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("identifier must not contain control characters: %q", id)
		}
	}
	if !idRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("identifier must match [a-zA-Z0-9._-]+: %s", id)
	}
	return nil
}

// ValidatePathSafety verifies target path does not escape the project root.
// Used to refuse archive destinations outside the tree being pruned.
func ValidatePathSafety(projectRoot, targetPath string) error {
	resolvedRoot, err := filepath.EvalSymlinks(projectRoot)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve project root: %v", err)
	}

	resolvedTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedTarget = resolveClosestAncestor(targetPath)
		} else {
			return errclass.ErrPathEscape.WithMessagef("cannot resolve target: %v", err)
		}
	}

	if !strings.HasPrefix(resolvedTarget+string(filepath.Separator), resolvedRoot+string(filepath.Separator)) &&
		resolvedTarget != resolvedRoot {
		return errclass.ErrPathEscape.WithMessagef("path escapes project root: %s", targetPath)
	}
	return nil
}

// resolveClosestAncestor walks up from path to find the closest existing
// ancestor, resolves it, then appends the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}
