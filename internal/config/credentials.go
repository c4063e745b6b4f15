package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
)

// LoadCredentials collects prefix and prefix_N from the environment. The
// unnumbered variable comes first, numbered ones follow in numeric order.
// Empty values are dropped.
func LoadCredentials(prefix string) []credentials.Source {
	return credentialsFrom(prefix, os.Environ())
}

func credentialsFrom(prefix string, environ []string) []credentials.Source {
	type numbered struct {
		n   int
		src credentials.Source
	}

	var base []credentials.Source
	var rest []numbered
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if name == prefix {
			base = append(base, credentials.Source{Label: name, Value: value})
			continue
		}
		suffix, found := strings.CutPrefix(name, prefix+"_")
		if !found {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 0 {
			continue
		}
		rest = append(rest, numbered{n: n, src: credentials.Source{Label: name, Value: value}})
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].n < rest[j].n })
	for _, r := range rest {
		base = append(base, r.src)
	}
	return base
}
