// Package env composes the environment handed to the tunnel process.
package env

import (
	"os"
	"sort"
	"strings"
)

// Vars maps variable names to values.
type Vars map[string]string

// Parse converts "K=V" entries into Vars. Entries without '=' or with an
// empty key are skipped; later entries win.
func Parse(kvs []string) Vars {
	m := make(Vars, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

// OS returns the current process environment.
func OS() Vars { return Parse(os.Environ()) }

// Merge layers extra over base, expands ${VAR} references in the extra
// values against the merged set and returns sorted "K=V" entries.
func Merge(base Vars, extra []string) []string {
	m := make(Vars, len(base)+len(extra))
	for k, v := range base {
		m[k] = v
	}
	over := Parse(extra)
	for k, v := range over {
		m[k] = v
	}
	for k, v := range over {
		m[k] = Expand(v, m)
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Expand replaces ${VAR} references found in vars. Unknown references are
// left untouched; expansion is not recursive.
func Expand(s string, vars Vars) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	return b.String()
}
