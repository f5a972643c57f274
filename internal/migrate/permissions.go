package migrate

import "strings"

// roleRules map role label substrings to destination roles, checked in
// order. "edit" comes first so labels like "can_edit_and_view" grant edit.
var roleRules = []struct {
	substr string
	role   DestinationRole
}{
	{"edit", RoleEditor},
	{"view", RoleViewer},
	{"comment", RoleCommenter},
}

// TranslateRole maps a source role label to a destination role by
// case-insensitive substring. Unrecognized labels become viewer.
func TranslateRole(label string) DestinationRole {
	lower := strings.ToLower(label)

	for _, rule := range roleRules {
		if strings.Contains(lower, rule.substr) {
			return rule.role
		}
	}

	return RoleViewer
}

// TranslatePermissions converts a sharing record into destination grant
// requests. Unshared records yield none; grants without an email are
// dropped; link-level access is not translated.
func TranslatePermissions(rec *SharingRecord) []PermissionGrantRequest {
	if rec == nil || !rec.IsShared {
		return nil
	}

	out := make([]PermissionGrantRequest, 0, len(rec.Grants))

	for _, g := range rec.Grants {
		email := strings.TrimSpace(g.PrincipalEmail)
		if email == "" {
			continue
		}

		label := g.RoleLabel
		if label == "" {
			label = string(g.SourceRole)
		}

		out = append(out, PermissionGrantRequest{Email: email, Role: TranslateRole(label)})
	}

	return out
}
