// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package validation

import (
	"strings"
	"testing"
)

type writeRequest struct {
	Path  string            `json:"path" validate:"required,nodepath"`
	Mode  string            `json:"mode,omitempty" validate:"omitempty,oneof=replace merge"`
	Tags  map[string]string `json:"tags" validate:"max=2"`
	Label string            `json:"-" validate:"max=4"`
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		req       writeRequest
		wantField string
		wantTag   string
	}{
		{"valid", writeRequest{Path: "/Plant/Sim1"}, "", ""},
		{"root", writeRequest{Path: "/"}, "", ""},
		{"missing path", writeRequest{}, "path", "required"},
		{"relative path", writeRequest{Path: "Plant/Sim1"}, "path", "nodepath"},
		{"trailing slash", writeRequest{Path: "/Plant/"}, "path", "nodepath"},
		{"empty segment", writeRequest{Path: "/Plant//Sim1"}, "path", "nodepath"},
		{"bad mode", writeRequest{Path: "/a", Mode: "append"}, "mode", "oneof"},
		{"too many tags", writeRequest{Path: "/a", Tags: map[string]string{"a": "", "b": "", "c": ""}}, "tags", "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected a validation error")
			}
			got := err.Errors()
			if len(got) != 1 {
				t.Fatalf("errors = %d, want 1: %v", len(got), err)
			}
			if got[0].Field() != tt.wantField || got[0].Tag() != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", got[0].Field(), got[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		apiErr := ValidateStruct(&writeRequest{}).ToAPIError()
		if apiErr.Code != ErrorCode {
			t.Errorf("code = %q", apiErr.Code)
		}
		if apiErr.Message != "path is required" {
			t.Errorf("message = %q", apiErr.Message)
		}
		if apiErr.Details["field"] != "path" {
			t.Errorf("details = %v", apiErr.Details)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		err := ValidateStruct(&writeRequest{Mode: "x", Label: "too long"})
		apiErr := err.ToAPIError()
		fields, ok := apiErr.Details["fields"].([]map[string]any)
		if !ok || len(fields) != 3 {
			t.Fatalf("fields = %v", apiErr.Details)
		}
		for _, want := range []string{"path is required", "mode must be one of: replace merge", "Label must be at most 4 characters"} {
			if !strings.Contains(apiErr.Message, want) {
				t.Errorf("message %q missing %q", apiErr.Message, want)
			}
		}
		if err.Error() != apiErr.Message {
			t.Errorf("Error() = %q, want %q", err.Error(), apiErr.Message)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := (&RequestValidationError{}).ToAPIError().Message; got != "Validation failed" {
			t.Errorf("message = %q", got)
		}
	})
}
