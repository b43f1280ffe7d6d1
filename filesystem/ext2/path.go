package ext2

import "strings"

// splitPath validates an absolute path per the spec's path contract
// (leading '/' required, no ".." components) and returns its non-empty
// components. "." components are kept: they resolve through the ordinary
// "." directory entry every directory carries, so no special-casing is
// needed beyond rejecting "..".
func splitPath(p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, newPathError("path", p, KindUnsupported)
	}
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return []string{}, nil
	}
	raw := strings.Split(trimmed, "/")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if part == "" {
			continue
		}
		if part == ".." {
			return nil, newPathError("path", p, KindUnsupported)
		}
		if len(part) > 255 {
			return nil, newPathError("path", p, KindNameTooLong)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// splitParentChild validates path and splits it into its parent directory's
// components and final element name. The root itself has no parent and
// returns ok=false.
func splitParentChild(p string) (parent []string, child string, ok bool, err error) {
	parts, err := splitPath(p)
	if err != nil {
		return nil, "", false, err
	}
	if len(parts) == 0 {
		return nil, "", false, nil
	}
	return parts[:len(parts)-1], parts[len(parts)-1], true, nil
}

func validateName(name string) error {
	if name == "" {
		return newError("validateName", KindStringEmpty)
	}
	if len(name) > 255 {
		return newError("validateName", KindNameTooLong)
	}
	if strings.ContainsRune(name, '/') {
		return newError("validateName", KindIllegalCharacter)
	}
	return nil
}
