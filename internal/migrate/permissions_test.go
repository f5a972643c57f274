package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateRole(t *testing.T) {
	tests := []struct {
		label string
		want  DestinationRole
	}{
		{"can_edit", RoleEditor},
		{"editor", RoleEditor},
		{"EDITOR", RoleEditor},
		{"viewer", RoleViewer},
		{"can_view", RoleViewer},
		{"viewer_no_comment", RoleViewer},
		{"commenter", RoleCommenter},
		{"can_comment", RoleCommenter},
		{"owner", RoleViewer},
		{"mystery", RoleViewer},
		{"", RoleViewer},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, TranslateRole(tc.label))
		})
	}
}

func TestTranslatePermissions_Unshared(t *testing.T) {
	assert.Empty(t, TranslatePermissions(nil))
	assert.Empty(t, TranslatePermissions(&SharingRecord{IsShared: false, Grants: []Grant{
		{PrincipalEmail: "a@example.com", RoleLabel: "editor"},
	}}))
}

func TestTranslatePermissions_Grants(t *testing.T) {
	rec := &SharingRecord{
		IsShared:   true,
		AccessType: AccessViewerLink,
		Grants: []Grant{
			{PrincipalEmail: "ed@example.com", SourceRole: SourceEditor, RoleLabel: "can_edit"},
			{PrincipalEmail: " view@example.com ", SourceRole: SourceViewer},
			{PrincipalEmail: "", SourceRole: SourceEditor, RoleLabel: "editor"},
			{PrincipalEmail: "c@example.com", SourceRole: SourceCommenter},
			{PrincipalEmail: "m@example.com", SourceRole: SourceUnknown, RoleLabel: "mystery"},
		},
	}

	got := TranslatePermissions(rec)

	assert.Equal(t, []PermissionGrantRequest{
		{Email: "ed@example.com", Role: RoleEditor},
		{Email: "view@example.com", Role: RoleViewer},
		{Email: "c@example.com", Role: RoleCommenter},
		{Email: "m@example.com", Role: RoleViewer},
	}, got)
}
