package http3

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/yourusername/shockwave/pkg/shockwave/http3/qpack"
)

// pseudoHeaders required on every request (RFC 9114 Section 4.3.1).
const (
	pseudoMethod    = ":method"
	pseudoScheme    = ":scheme"
	pseudoAuthority = ":authority"
	pseudoPath      = ":path"
)

// buildRequest turns a QPACK-decoded field list into a Request (§4.5).
// Pseudo-headers must all be present and must precede regular fields;
// repeated non-cookie fields fold with ", "; cookie folds with "; " per
// RFC 9114 Section 4.1.2's "may be concatenated" allowance (Request
// Builder's counterpart to the Response Serializer's set-cookie rule).
func buildRequest(fields []qpack.Header) (*Request, error) {
	var method, scheme, authority, path string
	seenPseudo := map[string]bool{}
	seenRegular := false

	order := make([]string, 0, len(fields))
	values := make(map[string][]string, len(fields))

	for _, f := range fields {
		name := strings.ToLower(f.Name)
		if strings.HasPrefix(name, ":") {
			if seenRegular {
				return nil, fmt.Errorf("pseudo-header %s after regular field", name)
			}
			switch name {
			case pseudoMethod:
				method = f.Value
			case pseudoScheme:
				scheme = f.Value
			case pseudoAuthority:
				authority = f.Value
			case pseudoPath:
				path = f.Value
			default:
				return nil, fmt.Errorf("unknown pseudo-header %s", name)
			}
			seenPseudo[name] = true
			continue
		}

		seenRegular = true
		if name == "connection" || name == "keep-alive" || name == "transfer-encoding" ||
			name == "upgrade" || name == "proxy-connection" {
			return nil, fmt.Errorf("connection-specific header %s forbidden in HTTP/3", name)
		}
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(f.Value) {
			return nil, fmt.Errorf("invalid header field %s", name)
		}
		// :authority takes precedence over a Host field (RFC 9114
		// Section 4.3.1); Host is recorded below only as a fallback.

		if _, ok := values[name]; !ok {
			order = append(order, name)
		}
		values[name] = append(values[name], f.Value)
	}

	if method == "" || scheme == "" || path == "" {
		return nil, fmt.Errorf("missing required pseudo-header")
	}
	if authority == "" {
		if h, ok := values["host"]; ok && len(h) > 0 {
			authority = h[0]
		} else {
			return nil, fmt.Errorf("missing :authority and Host")
		}
	}

	host, port := splitAuthority(authority)
	port = defaultPort(scheme, port)
	reqPath, query := splitPathQuery(path)

	headers := make([][2]string, 0, len(order))
	for _, name := range order {
		vals := values[name]
		joiner := ", "
		if name == "cookie" {
			joiner = "; "
		}
		headers = append(headers, [2]string{name, strings.Join(vals, joiner)})
	}

	return &Request{
		Method:    method,
		Scheme:    scheme,
		Authority: authority,
		Host:      host,
		Port:      port,
		Path:      reqPath,
		Query:     query,
		Headers:   headers,
	}, nil
}

// splitAuthority separates host and port from an :authority value,
// tolerating bracketed IPv6 literals.
func splitAuthority(authority string) (host, port string) {
	if h, p, err := net.SplitHostPort(authority); err == nil {
		return h, p
	}
	return authority, ""
}

// defaultPort applies §4.5 step 3: 80 for "http", 443 for "https" when
// the authority carried no explicit port; any other scheme (or an
// authority that did carry a port) passes port through unchanged.
func defaultPort(scheme, port string) string {
	if port != "" {
		return port
	}
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return port
	}
}

func splitPathQuery(path string) (p, query string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}
