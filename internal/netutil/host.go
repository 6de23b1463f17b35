package netutil

import "strings"

// ExtractHost pulls the host component out of a single storage-endpoint URI:
// the token between "://" and the next ":", "/", or the end of the string.
// This is the literal extraction rule a Site's comma-separated se string is
// matched against, not an eTLD+1/public-suffix reduction — two endpoints
// differing only by subdomain are distinct catalogue hosts here.
//
// Examples:
//
//	"srm://srm.example.org:8443/srm/managerv2" -> "srm.example.org"
//	"https://storage.example.org/webdav"       -> "storage.example.org"
//	"example.org"                              -> "example.org"
func ExtractHost(endpoint string) string {
	rest := endpoint
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	}
	end := len(rest)
	for _, sep := range []string{":", "/"} {
		if i := strings.Index(rest, sep); i >= 0 && i < end {
			end = i
		}
	}
	return rest[:end]
}

// SplitEndpoints splits a Site's comma-separated se string into its
// individual storage-endpoint URIs, trimming surrounding whitespace and
// dropping empty entries.
func SplitEndpoints(se string) []string {
	parts := strings.Split(se, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CatalogueURL builds the replica-catalogue URL for a site per spec.md's
// rule: sites with lfcHost set use the LFC scheme; sites with lfcHost unset
// fall back to the cloud's base DDM URL.
func CatalogueURL(lfcHost, ddmBaseURL string) string {
	if lfcHost != "" {
		return "lfc://" + lfcHost + ":/grid/atlas/"
	}
	return ddmBaseURL
}
