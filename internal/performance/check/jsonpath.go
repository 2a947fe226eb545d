package check

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract extracts a value from a JSON document using a JSONPath expression
// such as $.id or $[0].pvz.id.
func Extract(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("empty JSON body")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON body")
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// ExtractString extracts a non-empty string value.
func ExtractString(body []byte, path string) (string, error) {
	result, err := Extract(body, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null || result.String() == "" {
		return "", fmt.Errorf("empty value at %s", path)
	}
	return result.String(), nil
}

// toGjsonPath converts a JSONPath expression to gjson path syntax.
//
//	$            -> @this
//	$.pvz.id     -> pvz.id
//	$[0].pvz.id  -> 0.pvz.id
//	$['name']    -> name
//	$.items[*].id -> items.#.id
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "", "[*]", ".#", "[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
