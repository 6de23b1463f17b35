package netutil

import (
	"reflect"
	"testing"
)

func TestExtractHost(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"srm://srm.example.org:8443/srm/managerv2", "srm.example.org"},
		{"https://storage.example.org/webdav", "storage.example.org"},
		{"gsiftp://se01.example.org:2811/atlasdatadisk", "se01.example.org"},
		{"example.org", "example.org"},
		{"example.org/path", "example.org"},
		{"example.org:8080", "example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExtractHost(tt.input)
			if got != tt.want {
				t.Errorf("ExtractHost(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitEndpoints(t *testing.T) {
	got := SplitEndpoints("srm://a.example.org:8443/x, https://b.example.org/y ,, gsiftp://c.example.org/z")
	want := []string{
		"srm://a.example.org:8443/x",
		"https://b.example.org/y",
		"gsiftp://c.example.org/z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitEndpoints = %v, want %v", got, want)
	}
}

func TestSplitEndpoints_Empty(t *testing.T) {
	if got := SplitEndpoints(""); len(got) != 0 {
		t.Errorf("expected no endpoints for empty se, got %v", got)
	}
}

func TestCatalogueURL(t *testing.T) {
	if got := CatalogueURL("lfc.example.org", "https://ddm.example.org/"); got != "lfc://lfc.example.org:/grid/atlas/" {
		t.Errorf("CatalogueURL with lfcHost = %q, want lfc URL", got)
	}
	if got := CatalogueURL("", "https://ddm.example.org/"); got != "https://ddm.example.org/" {
		t.Errorf("CatalogueURL without lfcHost = %q, want ddm base URL", got)
	}
}
