package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "pipeline seed", role: RolePipeline, action: ActionSeed, allow: true},
		{name: "pipeline edit", role: RolePipeline, action: ActionEdit, allow: false},
		{name: "pipeline decide", role: RolePipeline, action: ActionDecide, allow: false},
		{name: "member dispute", role: RoleMember, action: ActionDispute, allow: true},
		{name: "member edit", role: RoleMember, action: ActionEdit, allow: false},
		{name: "editor decide", role: RoleEditor, action: ActionDecide, allow: true},
		{name: "editor admin", role: RoleEditor, action: ActionAdmin, allow: false},
		{name: "system admin", role: RoleSystem, action: ActionAdmin, allow: true},
		{name: "system dispute", role: RoleSystem, action: ActionDispute, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("editor"); got != RoleEditor {
		t.Fatalf("expected editor, got %q", got)
	}
	if got := Normalize("root"); got != RoleMember {
		t.Fatalf("expected unknown role to normalize to member, got %q", got)
	}
}
