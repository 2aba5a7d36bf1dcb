// Package environment overlays configuration with environment variables.
//
// A Reader only overwrites a destination when the variable is set to a
// non-empty value, so defaults and file-based settings survive. Values that
// fail to parse are collected and reported together by Err instead of being
// silently ignored.
package environment

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reader reads variables from a lookup function.
type Reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// New returns a Reader on the process environment.
func New() *Reader {
	return &Reader{lookup: os.LookupEnv}
}

// FromMap returns a Reader on a fixed set of variables.
func FromMap(m map[string]string) *Reader {
	return &Reader{lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

func (r *Reader) get(name string) (string, bool) {
	v, ok := r.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *Reader) fail(name, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", name, v, err))
}

// String sets *dst to the variable's value.
func (r *Reader) String(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

// Bool sets *dst using strconv.ParseBool syntax.
func (r *Reader) Bool(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, errors.New("not a boolean"))
		return
	}
	*dst = b
}

// Int sets *dst to the variable parsed as a decimal integer.
func (r *Reader) Int(name string, dst *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, errors.New("not an integer"))
		return
	}
	*dst = n
}

// Duration sets *dst to the variable parsed by time.ParseDuration ("30s",
// "24h").
func (r *Reader) Duration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, errors.New("not a duration"))
		return
	}
	*dst = d
}

// List sets *dst to the variable split on commas. Blank elements are dropped.
func (r *Reader) List(name string, dst *[]string) {
	if v, ok := r.get(name); ok {
		if list := SplitList(v); len(list) > 0 {
			*dst = list
		}
	}
}

// Err returns every parse failure seen so far, or nil.
func (r *Reader) Err() error {
	return errors.Join(r.errs...)
}

// SplitList splits a comma-separated list and trims each element.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
