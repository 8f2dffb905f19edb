// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

// mergeDocs returns a new document holding the keys of both a and b. Objects
// present on both sides are merged recursively; any other overlap is a
// conflict, reported as the key path where it occurred. Neither input is
// modified.
func mergeDocs(a, b map[string]interface{}) (map[string]interface{}, []string) {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		prev, found := out[k]
		if !found {
			out[k] = v
			continue
		}
		prevObj, ok1 := prev.(map[string]interface{})
		nextObj, ok2 := v.(map[string]interface{})
		if !ok1 || !ok2 {
			return nil, []string{k}
		}
		merged, conflict := mergeDocs(prevObj, nextObj)
		if conflict != nil {
			return nil, append([]string{k}, conflict...)
		}
		out[k] = merged
	}
	return out, nil
}
