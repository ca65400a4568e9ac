package viewcache

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
)

// TitlePrefix namespaces the titles this library writes onto appliances.
const TitlePrefix = "netshark-go"

// ViewTitle derives the stable title of a persistent view. The digest covers
// the query shape (column names plus the sorted identifying attributes) but
// never the time range, so the same logical query with different time
// windows maps to the same title. Callers must exclude timeframe attributes
// before passing attrs.
func ViewTitle(tableID int, namespace, name string, columnNames []string, attrs map[string]string) string {
	h := md5.New()
	h.Write([]byte(strings.Join(columnNames, ".")))

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s", k, attrs[k])
	}

	return strings.Join([]string{
		TitlePrefix,
		fmt.Sprint(tableID),
		namespace,
		name,
		fmt.Sprintf("%x", h.Sum(nil)),
	}, "/")
}
