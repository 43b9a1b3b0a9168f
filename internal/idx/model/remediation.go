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
	"strings"
)

// Field types announced by the identity provider.
const (
	FieldTypeString  = "string"
	FieldTypeBoolean = "boolean"
	FieldTypeObject  = "object"
)

// secretFieldNames lists field names treated as secret even when the provider does not flag them.
var secretFieldNames = map[string]bool{
	"passcode": true,
	"password": true,
	"code":     true,
	"otp":      true,
	"answer":   true,
	"totp":     true,
}

// FieldOption is one selectable value of a form field.
type FieldOption struct {
	Label string
	value interface{}
}

// Value returns a copy of the value submitted when this option is chosen.
func (o FieldOption) Value() interface{} {
	return cloneValue(o.value)
}

// Matches reports whether the caller supplied selector addresses this option. The label and any scalar
// value of the option are compared case-insensitively.
func (o FieldOption) Matches(selector string) bool {
	if strings.EqualFold(o.Label, selector) {
		return true
	}
	return valueContains(o.value, selector)
}

// FormField describes one input of a remediation option.
type FormField struct {
	Name     string
	Label    string
	Type     string
	Required bool
	Secret   bool
	Mutable  bool
	Visible  bool

	value    interface{}
	hasValue bool
	options  []FieldOption
	form     []FormField
}

// Value returns a copy of the server provided value, if any.
func (f FormField) Value() (interface{}, bool) {
	return cloneValue(f.value), f.hasValue
}

// Options returns a copy of the selectable options of the field.
func (f FormField) Options() []FieldOption {
	return append([]FieldOption(nil), f.options...)
}

// Form returns a copy of the nested fields of an object field.
func (f FormField) Form() []FormField {
	return cloneFields(f.form)
}

// NeedsInput reports whether the caller must supply the field.
func (f FormField) NeedsInput() bool {
	return f.Required && !f.hasValue
}

// IsSecret reports whether the field value must never be logged or remembered.
func (f FormField) IsSecret() bool {
	return f.Secret || secretFieldNames[strings.ToLower(f.Name)]
}

// RemediationOption is one server advertised next step.
type RemediationOption struct {
	name    string
	href    string
	method  string
	accepts string
	rel     []string
	fields  []FormField
}

// NewRemediationOption creates a remediation option. Mostly useful for tests.
func NewRemediationOption(name, href, method string, fields ...FormField) RemediationOption {
	return RemediationOption{
		name:   name,
		href:   href,
		method: method,
		fields: cloneFields(fields),
	}
}

// NewFormField creates a form field with a server provided value. Mostly useful for tests.
func NewFormField(name string, required bool, value interface{}) FormField {
	return FormField{
		Name:     name,
		Type:     FieldTypeString,
		Required: required,
		Mutable:  value == nil,
		Visible:  value == nil,
		value:    value,
		hasValue: value != nil,
	}
}

// WithOptions returns a copy of the field with the given selectable options.
func (f FormField) WithOptions(options ...FieldOption) FormField {
	f.Type = FieldTypeObject
	f.options = append([]FieldOption(nil), options...)
	return f
}

// NewFieldOption creates a selectable option. Mostly useful for tests.
func NewFieldOption(label string, value interface{}) FieldOption {
	return FieldOption{Label: label, value: value}
}

// Name returns the remediation name, which identifies the option.
func (r RemediationOption) Name() string {
	return r.name
}

// Href returns the URL the remediation is submitted to.
func (r RemediationOption) Href() string {
	return r.href
}

// Method returns the HTTP method of the remediation.
func (r RemediationOption) Method() string {
	if r.method == "" {
		return "POST"
	}
	return r.method
}

// Accepts returns the content type expected by the remediation endpoint.
func (r RemediationOption) Accepts() string {
	return r.accepts
}

// Rel returns a copy of the link relations of the remediation.
func (r RemediationOption) Rel() []string {
	return append([]string(nil), r.rel...)
}

// Fields returns a copy of the form fields of the remediation.
func (r RemediationOption) Fields() []FormField {
	return cloneFields(r.fields)
}

// Field returns the named field.
func (r RemediationOption) Field(name string) (FormField, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return cloneField(f), true
		}
	}
	return FormField{}, false
}

// RequiredFields returns the names of the fields the caller must supply.
func (r RemediationOption) RequiredFields() []string {
	required := make([]string, 0)
	for _, f := range r.fields {
		if f.NeedsInput() {
			required = append(required, f.Name)
		}
	}
	return required
}

func cloneFields(fields []FormField) []FormField {
	if fields == nil {
		return nil
	}
	out := make([]FormField, len(fields))
	for i, f := range fields {
		out[i] = cloneField(f)
	}
	return out
}

func cloneField(f FormField) FormField {
	f.value = cloneValue(f.value)
	f.options = append([]FieldOption(nil), f.options...)
	f.form = cloneFields(f.form)
	return f
}

// cloneValue deep copies the map and slice values produced by JSON decoding.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Inputs:
		return cloneValue(map[string]interface{}(t))
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

func valueContains(v interface{}, selector string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, selector)
	case map[string]interface{}:
		for _, val := range t {
			if valueContains(val, selector) {
				return true
			}
		}
	}
	return false
}
