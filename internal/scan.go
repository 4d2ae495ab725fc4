package internal

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
)

// ScanLimits bounds a best-effort payload scan. Exceeding any limit means
// the scan reports not-found; it never fails the request.
type ScanLimits struct {
	MaxDepth           int
	MaxBreadthPerArray int
	MaxKeysVisited     int
}

func DefaultScanLimits() ScanLimits {
	return ScanLimits{
		MaxDepth:           6,
		MaxBreadthPerArray: 16,
		MaxKeysVisited:     512,
	}
}

// FindByKey walks root breadth-first and returns the first primitive value
// stored under any of the given key names, compared case-insensitively.
// Breadth-first order makes shallow, top-level matches win over deeply
// nested ones.
func FindByKey(root interface{}, keys []string, limits ScanLimits) (interface{}, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	wanted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		wanted[strings.ToLower(key)] = struct{}{}
	}
	return scan(root, limits, func(key string, value interface{}) bool {
		_, ok := wanted[strings.ToLower(key)]
		return ok
	})
}

// FindStringByPattern walks root breadth-first and returns the first string
// value matching the given pattern, regardless of which key holds it.
func FindStringByPattern(root interface{}, pattern *regexp.Regexp, limits ScanLimits) (string, bool) {
	value, ok := scan(root, limits, func(_ string, value interface{}) bool {
		text, isString := value.(string)
		return isString && pattern.MatchString(text)
	})
	if !ok {
		return "", false
	}
	text, _ := value.(string)
	return text, true
}

type scanNode struct {
	value interface{}
	depth int
}

func scan(root interface{}, limits ScanLimits, match func(key string, value interface{}) bool) (interface{}, bool) {
	if root == nil {
		return nil, false
	}

	queue := []scanNode{{value: root, depth: 0}}
	seen := make(map[uintptr]struct{})
	visited := 0

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if ptr, ok := identity(node.value); ok {
			if _, dup := seen[ptr]; dup {
				continue
			}
			seen[ptr] = struct{}{}
		}

		switch typed := node.value.(type) {
		case map[string]interface{}:
			for key, child := range typed {
				visited++
				if visited > limits.MaxKeysVisited {
					IncScanLimitHit()
					return nil, false
				}
				if isPrimitive(child) && match(key, child) {
					return child, true
				}
				if isContainer(child) && node.depth+1 <= limits.MaxDepth {
					queue = append(queue, scanNode{value: child, depth: node.depth + 1})
				}
			}
		case []interface{}:
			for i, child := range typed {
				if i >= limits.MaxBreadthPerArray {
					// excess elements are silently ignored
					break
				}
				visited++
				if visited > limits.MaxKeysVisited {
					IncScanLimitHit()
					return nil, false
				}
				if isPrimitive(child) && match("", child) {
					return child, true
				}
				if isContainer(child) && node.depth+1 <= limits.MaxDepth {
					queue = append(queue, scanNode{value: child, depth: node.depth + 1})
				}
			}
		}
	}
	return nil, false
}

// identity returns a pointer identity for maps and slices so repeated
// substructures are traversed once.
func identity(value interface{}) (uintptr, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if !rv.IsNil() {
			return rv.Pointer(), true
		}
	}
	return 0, false
}

func isContainer(value interface{}) bool {
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

func isPrimitive(value interface{}) bool {
	switch value.(type) {
	case string, bool, float64, int, int64, json.Number:
		return true
	}
	return false
}
