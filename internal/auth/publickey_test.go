package auth

import "testing"

func TestIsPublishableKeyShape(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sb_publishable_abcdef", true},
		{"pk_live_abcdef", true},
		{"pk_test_abcdef", true},
		{"  pk_test_abcdef  ", true},
		{"sk_live_abcdef", false},
		{"pk_liveabc", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := IsPublishableKeyShape(tt.key); got != tt.want {
			t.Errorf("IsPublishableKeyShape(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestIsConfiguredPublicKey(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		configured []string
		strict     bool
		want       bool
	}{
		{"exact configured match", "my-key", []string{"my-key"}, false, true},
		{"configured set excludes shape match", "pk_live_other", []string{"my-key"}, false, false},
		{"shape match when nothing configured", "pk_live_other", nil, false, true},
		{"strict disables shape match", "pk_live_other", nil, true, false},
		{"strict still honors configured keys", "my-key", []string{"my-key"}, true, true},
		{"empty credential", "", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isConfiguredPublicKey(tt.key, tt.configured, tt.strict)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
