/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package model

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/asgardeo/idxflow/internal/system/error/flowerror"
)

// Inputs are the caller supplied values of a remediation.
type Inputs map[string]interface{}

// Validate checks inputs against the option's fields. It reports missing required fields first, then
// values that do not fit their field.
func (r RemediationOption) Validate(inputs Inputs) error {
	normalized, err := r.normalize(inputs)
	if err != nil {
		return err
	}

	missing := make([]string, 0)
	for _, f := range r.fields {
		v, supplied := normalized[f.Name]
		if f.NeedsInput() && isBlank(v) {
			missing = append(missing, f.Name)
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok && supplied && len(f.form) > 0 {
			for _, nf := range f.form {
				if nf.NeedsInput() && isBlank(nested[nf.Name]) {
					missing = append(missing, f.Name+"."+nf.Name)
				}
			}
		}
	}
	if len(missing) > 0 {
		return flowerror.NewMissingFieldsError(r.name, missing)
	}

	invalid := make([]string, 0)
	for _, name := range sortedKeys(normalized) {
		f, _ := r.field(name)
		if !fitsField(f, normalized[name]) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return flowerror.NewValidationError(flowerror.CodeInvalidFieldValue,
			fmt.Sprintf("invalid values for remediation %q", r.name), invalid...)
	}
	return nil
}

// Payload builds the request body of the option: server provided values first, then the inputs with
// option selectors resolved to the selected option's value. Validate should be called first.
func (r RemediationOption) Payload(inputs Inputs) (map[string]interface{}, error) {
	normalized, err := r.normalize(inputs)
	if err != nil {
		return nil, err
	}

	body := make(map[string]interface{}, len(r.fields))
	for _, f := range r.fields {
		if f.hasValue {
			body[f.Name] = cloneValue(f.value)
		}
	}
	for name, v := range normalized {
		f, _ := r.field(name)
		if selector, ok := v.(string); ok && len(f.options) > 0 {
			option, found := f.selectOption(selector)
			if !found {
				return nil, flowerror.NewValidationError(flowerror.CodeInvalidFieldValue,
					fmt.Sprintf("no option of %q matches %q", name, selector), name)
			}
			body[name] = option.Value()
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			merged := map[string]interface{}{}
			if prefilled, ok := body[name].(map[string]interface{}); ok {
				merged = prefilled
			}
			for k, nv := range nested {
				merged[k] = cloneValue(nv)
			}
			body[name] = merged
			continue
		}
		body[name] = cloneValue(v)
	}
	return body, nil
}

// ContextValues returns the non-secret string inputs, to be remembered by the session. Nested values
// are keyed as "parent.child".
func (r RemediationOption) ContextValues(inputs Inputs) map[string]string {
	values := map[string]string{}
	normalized, err := r.normalize(inputs)
	if err != nil {
		return values
	}
	for name, v := range normalized {
		f, _ := r.field(name)
		if f.IsSecret() {
			continue
		}
		switch t := v.(type) {
		case string:
			values[name] = t
		case map[string]interface{}:
			for k, nv := range t {
				nf, _ := f.nestedField(k)
				if s, ok := nv.(string); ok && !nf.IsSecret() && !secretFieldNames[strings.ToLower(k)] {
					values[name+"."+k] = s
				}
			}
		}
	}
	return values
}

// normalize places shorthand inputs, such as "passcode" for a field nested under "credentials", into
// their parent object. Inputs that match no field are rejected.
func (r RemediationOption) normalize(inputs Inputs) (map[string]interface{}, error) {
	normalized := make(map[string]interface{}, len(inputs))
	shorthand := make([]string, 0)
	for _, name := range sortedKeys(inputs) {
		if _, ok := r.field(name); ok {
			normalized[name] = cloneValue(inputs[name])
		} else {
			shorthand = append(shorthand, name)
		}
	}

	unknown := make([]string, 0)
	for _, name := range shorthand {
		parent, ok := r.parentOf(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		nested, isMap := normalized[parent].(map[string]interface{})
		if !isMap {
			if normalized[parent] != nil {
				unknown = append(unknown, name)
				continue
			}
			nested = map[string]interface{}{}
			normalized[parent] = nested
		}
		nested[name] = cloneValue(inputs[name])
	}
	if len(unknown) > 0 {
		return nil, flowerror.NewValidationError(flowerror.CodeInvalidFieldValue,
			fmt.Sprintf("unknown inputs for remediation %q", r.name), unknown...)
	}
	return normalized, nil
}

func (r RemediationOption) field(name string) (FormField, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FormField{}, false
}

// parentOf finds the single object field that nests a field of the given name.
func (r RemediationOption) parentOf(name string) (string, bool) {
	parent := ""
	for _, f := range r.fields {
		if _, ok := f.nestedField(name); ok {
			if parent != "" {
				return "", false
			}
			parent = f.Name
		}
	}
	return parent, parent != ""
}

func (f FormField) nestedField(name string) (FormField, bool) {
	for _, nf := range f.form {
		if nf.Name == name {
			return nf, true
		}
	}
	return FormField{}, false
}

func (f FormField) selectOption(selector string) (FieldOption, bool) {
	for _, o := range f.options {
		if o.Matches(selector) {
			return o, true
		}
	}
	return FieldOption{}, false
}

func fitsField(f FormField, v interface{}) bool {
	if v == nil {
		return !f.Required
	}
	// Server provided values of immutable fields can be echoed but not replaced.
	if !f.Mutable && f.hasValue {
		return sameValue(f.value, v)
	}
	switch {
	case len(f.options) > 0:
		switch t := v.(type) {
		case string:
			_, ok := f.selectOption(t)
			return ok
		case map[string]interface{}:
			return true
		}
		return false
	case len(f.form) > 0:
		nested, ok := v.(map[string]interface{})
		if !ok {
			return false
		}
		for k, nv := range nested {
			nf, known := f.nestedField(k)
			if !known || !fitsField(nf, nv) {
				return false
			}
		}
		return true
	case f.Type == FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case f.Type == FieldTypeString:
		_, ok := v.(string)
		return ok
	}
	return true
}

func sameValue(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	switch a.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	switch b.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	// JSON numbers decode as float64 while callers pass ints.
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
