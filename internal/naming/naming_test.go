package naming

import "testing"

func TestProjectKey(t *testing.T) {
	tests := []struct {
		system string
		name   string
		want   string
	}{
		{"sbf", "bot-builder", "sbf_projects_bot-builder"},
		{"cae", "modeling", "cae_projects_modeling"},
		{"demo", "P", "demo_projects_P"},
	}

	for _, tt := range tests {
		if got := ProjectKey(tt.system, tt.name); got != tt.want {
			t.Errorf("ProjectKey(%q, %q) = %q, want %q", tt.system, tt.name, got, tt.want)
		}
	}
}

func TestListKey(t *testing.T) {
	if got := ListKey("sbf"); got != "sbf_projects" {
		t.Errorf("ListKey(sbf) = %q, want sbf_projects", got)
	}
}

func TestProjectKeyDeterministic(t *testing.T) {
	a := ProjectKey("demo", "P")
	b := ProjectKey("demo", "P")
	if a != b {
		t.Errorf("ProjectKey not deterministic: %q != %q", a, b)
	}
}

func TestValidName(t *testing.T) {
	if err := ValidName("ok"); err != nil {
		t.Errorf("ValidName(ok) = %v, want nil", err)
	}
	if err := ValidName(""); err == nil {
		t.Error("ValidName(\"\") = nil, want error")
	}
}
