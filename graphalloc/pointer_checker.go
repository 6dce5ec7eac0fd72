// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Object payloads live in memory the garbage collector never scans, so a
// type placed in one must not contain Go pointers in any of its fields,
// however deeply nested. This check walks a type and collects the path to
// every pointerful field it finds, so the resulting panic names the exact
// offenders.

type pointerPaths struct {
	paths []string
}

func (p *pointerPaths) add(path string) {
	p.paths = append(p.paths, path)
}

func (p *pointerPaths) String() string {
	return strings.Join(p.paths, ",")
}

func containsNoPointers[T any]() error {
	t := reflect.TypeFor[T]()
	paths := &pointerPaths{}
	searchForPointers(t, "", paths)
	if len(paths.paths) != 0 {
		return fmt.Errorf("found pointer(s): %s", paths)
	}
	return nil
}

func searchForPointers(t reflect.Type, path string, paths *pointerPaths) {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		// Pointer-free

	case reflect.Array:
		size := strconv.Itoa(t.Len())
		searchForPointers(t.Elem(), path+"["+size+"]", paths)

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			searchForPointers(field.Type, path+"("+t.String()+")"+field.Name, paths)
		}

	default:
		// Chan, Func, Interface, Map, Pointer, Slice, String,
		// UnsafePointer and anything new all carry pointers
		paths.add(path + "<" + t.String() + ">")
	}
}
