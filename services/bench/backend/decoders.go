// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	gojson "github.com/goccy/go-json"
	jsoniter "github.com/json-iterator/go"
	"github.com/romshark/jscan/v2"
)

// Built-in decoder names.
const (
	DecoderStdlib   = "encoding-json"
	DecoderSonic    = "sonic"
	DecoderGoccy    = "goccy"
	DecoderJsoniter = "jsoniter"
	DecoderJscan    = "jscan"
	DecoderGoja     = "goja"
)

var errInvalidJSON = errors.New("invalid JSON")

// BuiltinDecoders returns the in-process decoders in their canonical order.
//
// encoding-json comes first; it is the reference the others are verified
// against. Each call returns fresh decoders, so a goja VM is never shared
// between registries.
func BuiltinDecoders() []Decoder {
	return []Decoder{
		{
			Name:    DecoderStdlib,
			Library: "encoding/json",
			Decode: func(data []byte) (any, error) {
				var v any
				err := json.Unmarshal(data, &v)
				return v, err
			},
		},
		{
			Name:    DecoderSonic,
			Library: "github.com/bytedance/sonic",
			Decode: func(data []byte) (any, error) {
				var v any
				err := sonic.Unmarshal(data, &v)
				return v, err
			},
		},
		{
			Name:    DecoderGoccy,
			Library: "github.com/goccy/go-json",
			Decode: func(data []byte) (any, error) {
				var v any
				err := gojson.Unmarshal(data, &v)
				return v, err
			},
		},
		{
			Name:    DecoderJsoniter,
			Library: "github.com/json-iterator/go",
			Decode: func(data []byte) (any, error) {
				var v any
				err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &v)
				return v, err
			},
		},
		{
			Name:      DecoderJscan,
			Library:   "github.com/romshark/jscan/v2",
			Validates: true,
			Decode: func(data []byte) (any, error) {
				if !jscan.Valid(data) {
					return nil, errInvalidJSON
				}
				return nil, nil
			},
		},
		newGojaDecoder(),
	}
}

// newGojaDecoder parses with JSON.parse inside an embedded JavaScript VM,
// standing in for an interpreted-language baseline.
func newGojaDecoder() Decoder {
	vm := goja.New()
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))

	return Decoder{
		Name:    DecoderGoja,
		Library: "github.com/dop251/goja",
		Decode: func(data []byte) (any, error) {
			if !ok {
				return nil, fmt.Errorf("goja: JSON.parse is not callable")
			}
			v, err := parse(goja.Undefined(), vm.ToValue(string(data)))
			if err != nil {
				return nil, err
			}
			// Exported lazily by Verify; conversion is not part of the parse.
			return v, nil
		},
	}
}
