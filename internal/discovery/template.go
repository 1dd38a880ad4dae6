package discovery

import (
	"net/url"
	"strings"
)

// Fill replaces {name} placeholders in template with escaped values.
// Names match case-insensitively. Placeholders after '?' are query-escaped, the rest path-escaped.
// An empty value counts as missing. missing lists unresolved names in template order.
func Fill(template string, values map[string]string) (filled string, missing []string) {
	var sb strings.Builder
	inQuery := false
	for i := 0; i < len(template); {
		c := template[i]
		if c == '?' {
			inQuery = true
		}
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			sb.WriteString(template[i:])
			break
		}
		name := strings.TrimSpace(template[i+1 : i+end])
		value := strings.TrimSpace(lookup(values, name))
		switch {
		case value == "":
			missing = append(missing, name)
			sb.WriteString(template[i : i+end+1])
		case inQuery:
			sb.WriteString(url.QueryEscape(value))
		default:
			sb.WriteString(url.PathEscape(value))
		}
		i += end + 1
	}
	return sb.String(), missing
}

// Placeholders returns the placeholder names in template, in order.
func Placeholders(template string) []string {
	var names []string
	for rest := template; ; {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return names
		}
		names = append(names, strings.TrimSpace(rest[start+1:start+end]))
		rest = rest[start+end+1:]
	}
}

func lookup(values map[string]string, name string) string {
	if v, ok := values[name]; ok {
		return v
	}
	lower := strings.ToLower(name)
	for k, v := range values {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return ""
}
