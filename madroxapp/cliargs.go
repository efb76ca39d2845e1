/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package madroxapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flagValPair associates a command line flag with its value.
type flagValPair struct {
	flag string
	val  any
}

// flagValPairs parses args and associates flags with their values.
// A flag followed directly by another flag (or by nothing) is a
// boolean true. A value starting with '[' opens a list that runs
// through the arg ending in ']'.
func flagValPairs(args []string) []flagValPair {
	var pairs []flagValPair

	var flag string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if isFlag(arg) {
			if flag != "" {
				pairs = append(pairs, flagValPair{flag: flag, val: true})
			}
			flag = arg
			continue
		}

		var val any
		if strings.HasPrefix(arg, "[") {
			list := []any{}
			elem := arg[1:]
			for {
				last := strings.HasSuffix(elem, "]")
				if last {
					elem = elem[:len(elem)-1]
				}
				if elem != "" {
					list = append(list, autoType(elem))
				}
				if last || i+1 >= len(args) {
					break
				}
				i++
				elem = args[i]
			}
			val = list
		} else {
			val = autoType(arg)
		}

		pairs = append(pairs, flagValPair{flag: flag, val: val})
		flag = ""
	}

	if flag != "" {
		pairs = append(pairs, flagValPair{flag: flag, val: true})
	}

	return pairs
}

// isFlag returns whether s looks like a flag argument.
func isFlag(s string) bool {
	return len(s) > 2 && s[:2] == "--"
}

// autoType returns the value of str as the JSON type it looks like.
func autoType(str string) any {
	s := strings.TrimSpace(strings.ToLower(str))
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if num, err := strconv.Atoi(s); err == nil {
		return num
	}
	if dec, err := strconv.ParseFloat(s, 64); err == nil {
		return dec
	}
	return str
}

// flagKey turns a flag like "--identity-id" into
// the JSON key "identity_id".
func flagKey(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "-"), "-", "_")
}

// makeJSON encodes command line args as a JSON request body. A single
// bare argument becomes a JSON string, which is what the commands that
// take an ID expect. Flags become object keys; dots in a flag nest
// objects and "[n]" indexes into arrays, so
//
//	--metadata.source osint --tags[1] b
//
// becomes {"metadata":{"source":"osint"},"tags":[null,"b"]}.
func makeJSON(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args) == 1 && !isFlag(args[0]) {
		return json.Marshal(args[0])
	}

	var obj any
	for _, pair := range flagValPairs(args) {
		if pair.flag == "" {
			return nil, fmt.Errorf("value %v is not preceded by a flag", pair.val)
		}
		var err error
		obj, err = setPath(obj, keyPath(flagKey(pair.flag)), pair.val)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", pair.flag, err)
		}
	}

	return json.Marshal(obj)
}

// keyPath splits a flag key into its object keys and array
// indices; "a.b[2].c" becomes ["a", "b", "[2]", "c"].
func keyPath(key string) []string {
	var path []string
	for part := range strings.SplitSeq(key, ".") {
		if k := strings.Index(part, "["); k > 0 && strings.HasSuffix(part, "]") {
			path = append(path, part[:k], part[k:])
			continue
		}
		path = append(path, part)
	}
	return path
}

// setPath returns obj with val stored at path, creating
// maps and slices along the way as needed.
func setPath(obj any, path []string, val any) (any, error) {
	if len(path) == 0 {
		return val, nil
	}
	part := path[0]

	if len(part) > 1 && part[0] == '[' && part[len(part)-1] == ']' {
		idx, err := strconv.Atoi(part[1 : len(part)-1])
		if err != nil || idx < 0 {
			return obj, fmt.Errorf("invalid array index %s", part)
		}
		if obj == nil {
			obj = []any{}
		}
		arr, ok := obj.([]any)
		if !ok {
			return obj, fmt.Errorf("expected an array at %s but got %T", part, obj)
		}
		if len(arr) <= idx {
			arr = append(arr, make([]any, idx-len(arr)+1)...)
		}
		arr[idx], err = setPath(arr[idx], path[1:], val)
		return arr, err
	}

	if obj == nil {
		obj = make(map[string]any)
	}
	m, ok := obj.(map[string]any)
	if !ok {
		return obj, fmt.Errorf("expected an object at %s but got %T", part, obj)
	}
	var err error
	m[part], err = setPath(m[part], path[1:], val)
	return m, err
}
