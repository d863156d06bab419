package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned when a payload with extract rules is not JSON.
var ErrNotJSON = errors.New("payload is not valid JSON")

// Extract evaluates JSONPath rules against a rendered payload and returns
// one string per variable, ready to be substituted into a topic. Scalars
// are returned as their plain text, objects and arrays as compact JSON.
//
//	$.device.id          -> device.id
//	$.readings[0].value  -> readings.0.value
//	$.readings[*].value  -> readings.#.value
//	$['a.b']             -> a\.b
func Extract(payload []byte, rules map[string]string) (map[string]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(payload) {
		return nil, ErrNotJSON
	}

	values := make(map[string]string, len(rules))
	var errs []error
	for name, path := range rules {
		res := gjson.GetBytes(payload, toGJSON(path))
		if !res.Exists() {
			errs = append(errs, fmt.Errorf("%s: path %q matched nothing", name, path))
			continue
		}
		values[name] = resultString(res)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

func resultString(res gjson.Result) string {
	switch res.Type {
	case gjson.JSON:
		return gjson.Get(res.Raw, "@ugly").Raw
	default:
		return res.String()
	}
}

// toGJSON rewrites a JSONPath expression into gjson path syntax. A bare
// "$" selects the whole document.
func toGJSON(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var segs []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '.':
			flush()
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				cur.WriteString(path[i:])
				i = len(path)
				continue
			}
			flush()
			segs = append(segs, bracketSegment(path[i+1:i+end]))
			i += end
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return strings.Join(segs, ".")
}

// bracketSegment converts the inside of [...]: an index, a wildcard or a
// quoted key whose dots must not split the path.
func bracketSegment(s string) string {
	if s == "*" {
		return "#"
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return strings.ReplaceAll(s[1:len(s)-1], ".", `\.`)
	}
	return s
}
