package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChangeRecords(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		check    func(t *testing.T, records []*ChangeRecord)
		hasError bool
	}{
		{
			name: "single file record",
			data: `{
				"category": "FILE",
				"change_kind": "CREATED",
				"current": {"path": "/usr/bin/evil", "is_executable": true, "set_uid": true, "permissions": {"owner": "rwx"}}
			}`,
			check: func(t *testing.T, records []*ChangeRecord) {
				require.Len(t, records, 1)
				r := records[0]
				assert.Equal(t, CategoryFile, r.Category)
				assert.Equal(t, ChangeCreated, r.ChangeKind)
				assert.Nil(t, r.Previous)
				current, ok := r.Current.(*FileSystemObject)
				require.True(t, ok)
				assert.True(t, current.SetUID)
				assert.Equal(t, map[string]string{"owner": "rwx"}, current.Permissions)
				assert.Equal(t, "/usr/bin/evil", r.Identity, "identity falls back to the snapshot")
			},
		},
		{
			name: "array of records",
			data: `[
				{"identity": "tcp:0.0.0.0:22", "category": "PORT", "change_kind": "DELETED", "previous": {"address": "0.0.0.0", "port": 22, "type": "tcp"}},
				{"category": "GROUP", "change_kind": "MODIFIED", "previous": {"name": "admins"}, "current": {"name": "admins", "groups": ["a"]}}
			]`,
			check: func(t *testing.T, records []*ChangeRecord) {
				require.Len(t, records, 2)
				assert.Equal(t, "tcp:0.0.0.0:22", records[0].Identity)
				port, ok := records[0].Previous.(*OpenPortObject)
				require.True(t, ok)
				assert.Equal(t, 22, port.Port)

				_, ok = records[1].Current.(*UserAccountObject)
				assert.True(t, ok, "GROUP snapshots decode as user accounts")
			},
		},
		{
			name: "missing category and kind default to UNKNOWN",
			data: `{"identity": "x"}`,
			check: func(t *testing.T, records []*ChangeRecord) {
				require.Len(t, records, 1)
				assert.Equal(t, CategoryUnknown, records[0].Category)
				assert.Equal(t, ChangeUnknown, records[0].ChangeKind)
			},
		},
		{
			name: "null snapshot",
			data: `{"category": "LOG", "change_kind": "CREATED", "current": null}`,
			check: func(t *testing.T, records []*ChangeRecord) {
				require.Len(t, records, 1)
				assert.Nil(t, records[0].Current)
			},
		},
		{name: "unknown category", data: `{"category": "PRINTER"}`, hasError: true},
		{name: "unknown change kind", data: `{"category": "FILE", "change_kind": "RENAMED"}`, hasError: true},
		{name: "snapshot for UNKNOWN category", data: `{"category": "UNKNOWN", "current": {"a": 1}}`, hasError: true},
		{name: "wrong snapshot field type", data: `{"category": "PORT", "current": {"port": "http"}}`, hasError: true},
		{name: "invalid JSON", data: `invalid json`, hasError: true},
		{name: "empty payload", data: "   ", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeChangeRecords([]byte(tt.data))
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, records)
		})
	}
}

func TestNewEntity_Aliases(t *testing.T) {
	assert.IsType(t, &UserAccountObject{}, NewEntity(CategoryGroup))
	assert.IsType(t, &FirewallObject{}, NewEntity(CategoryCOM))
	assert.IsType(t, &FirewallObject{}, NewEntity(CategoryLog))
	assert.Nil(t, NewEntity(CategoryUnknown))
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		input    string
		expected Platform
		hasError bool
	}{
		{input: "WINDOWS", expected: PlatformWindows},
		{input: "linux", expected: PlatformLinux},
		{input: "darwin", expected: PlatformMacOS},
		{input: "MacOS", expected: PlatformMacOS},
		{input: "plan9", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePlatform(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
