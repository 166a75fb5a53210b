package scheme

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridManager(t *testing.T) {
	s := GridManager()

	assert.Equal(t, "Infoblox Grid Manager", s.Title)
	assert.True(t, s.StreamingModeXML)
	assert.False(t, s.UseExternalValidation)
	assert.False(t, s.UseSingleInstance)
	require.Len(t, s.Arguments, 8)

	usessl, ok := s.Argument("usessl")
	require.True(t, ok)
	assert.Equal(t, DataTypeBoolean, usessl.DataType)
	assert.False(t, usessl.RequiredOnCreate)

	_, ok = s.Argument("token")
	assert.False(t, ok)
}

func TestCheckRequired(t *testing.T) {
	tests := []struct {
		name string
		args map[string]string
		want []string
	}{
		{
			name: "all present",
			args: map[string]string{"username": "admin", "password": "<encrypted>", "domain": "gm.example.com"},
		},
		{
			name: "empty values count as missing",
			args: map[string]string{"username": "", "password": "secret"},
			want: []string{"domain", "username"},
		},
		{
			name: "optional arguments are ignored",
			args: map[string]string{"username": "a", "password": "b", "domain": "c", "limit": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GridManager().CheckRequired(tt.args))
		})
	}
}

func TestWriteXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GridManager().WriteXML(&buf))

	var doc xmlScheme
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "xml", doc.StreamingMode)
	assert.Equal(t, "Batch input of IP information from Infoblox Grid Manager", doc.Description)
	require.Len(t, doc.Args, 8)
	assert.Equal(t, "username", doc.Args[0].Name)
	assert.True(t, doc.Args[0].RequiredOnCreate)
	assert.Equal(t, "boolean", doc.Args[3].DataType)
	assert.Contains(t, buf.String(), `<arg name="fields">`)
}
