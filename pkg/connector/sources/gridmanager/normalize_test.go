package gridmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridfeed/pkg/errors"
	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, jsonpool.UnmarshalNumber([]byte(s), &m))
	return m
}

func encode(t *testing.T, m map[string]interface{}) string {
	t.Helper()
	data, err := EncodeCompact(m)
	require.NoError(t, err)
	return string(data)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "inherited attribute",
			raw:  `{"network":"10.0.0.0/24","extattrs":{"site":{"value":"NYC","inheritance_source":{"_default":"LAX"}}}}`,
			want: `{"extattrs":{"site":"NYC","site_default":"LAX"},"network":"10.0.0.0/24"}`,
		},
		{
			name: "plain attributes",
			raw:  `{"extattrs":{"Owner":{"value":"netops"},"VLAN":{"value":42}}}`,
			want: `{"extattrs":{"Owner":"netops","VLAN":42}}`,
		},
		{
			name: "several suffixes",
			raw:  `{"extattrs":{"site":{"value":"NYC","inheritance_source":{"_a":1,"_b":"x"}}}}`,
			want: `{"extattrs":{"site":"NYC","site_a":1,"site_b":"x"}}`,
		},
		{
			name: "null inheritance source",
			raw:  `{"extattrs":{"site":{"value":"NYC","inheritance_source":null}}}`,
			want: `{"extattrs":{"site":"NYC"}}`,
		},
		{
			name: "original attribute wins over synthetic key",
			raw:  `{"extattrs":{"site":{"value":"NYC","inheritance_source":{"_default":"LAX"}},"site_default":{"value":"SFO"}}}`,
			want: `{"extattrs":{"site":"NYC","site_default":"SFO"}}`,
		},
		{
			name: "options keyed by name",
			raw:  `{"options":[{"name":"dhcp","enabled":true},{"enabled":false}]}`,
			want: `{"options":{"dhcp":{"enabled":true},"unknown":{"enabled":false}}}`,
		},
		{
			name: "later option with same name wins",
			raw:  `{"options":[{"name":"routers","value":"10.0.0.1"},{"name":"routers","value":"10.0.0.254"}]}`,
			want: `{"options":{"routers":{"value":"10.0.0.254"}}}`,
		},
		{
			name: "non-string option name",
			raw:  `{"options":[{"name":3,"value":"a"},{"name":null,"value":"b"}]}`,
			want: `{"options":{"3":{"value":"a"},"null":{"value":"b"}}}`,
		},
		{
			name: "empty sections stay empty",
			raw:  `{"extattrs":{},"options":[]}`,
			want: `{"extattrs":{},"options":{}}`,
		},
		{
			name: "absent sections stay absent",
			raw:  `{"_ref":"network/ZG5z:10.0.0.0/24/default","comment":"<lab> & co"}`,
			want: `{"_ref":"network/ZG5z:10.0.0.0/24/default","comment":"<lab> & co"}`,
		},
		{
			name: "large integers keep their text",
			raw:  `{"id":12345678901234567890,"ratio":0.10}`,
			want: `{"id":12345678901234567890,"ratio":0.10}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(decode(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, encode(t, got))
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := decode(t, `{"extattrs":{"site":{"value":"NYC","inheritance_source":{"_default":"LAX"}}},"options":[{"name":"dhcp","enabled":true}]}`)
	before := encode(t, raw)

	_, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, before, encode(t, raw))
}

func TestNormalizeSyntheticCollisionIsStable(t *testing.T) {
	raw := decode(t, `{"extattrs":{
		"a":{"value":"A","inheritance_source":{"bc":"from-a"}},
		"ab":{"value":"AB","inheritance_source":{"c":"from-ab"}}
	}}`)

	want := `{"extattrs":{"a":"A","ab":"AB","abc":"from-ab"}}`
	for i := 0; i < 100; i++ {
		out, err := Normalize(raw)
		require.NoError(t, err)
		require.Equal(t, want, encode(t, out), "iteration %d", i)
	}
}

func TestEncodeCompactSortsKeys(t *testing.T) {
	raw := decode(t, `{"network":"10.0.0.0/24","comment":"lab","extattrs":{"Zone":{"value":"z"},"Area":{"value":"a"}}}`)
	out, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"comment":"lab","extattrs":{"Area":"a","Zone":"z"},"network":"10.0.0.0/24"}`, encode(t, out))
}

func TestNormalizeAppliedOnce(t *testing.T) {
	raw := decode(t, `{"extattrs":{"site":{"value":"NYC","inheritance_source":{"_default":"LAX"}}},"options":[{"name":"dhcp","enabled":true}]}`)

	first, err := Normalize(raw)
	require.NoError(t, err)

	// Normalized output is not a raw record: flattened attributes are no
	// longer objects and options are no longer a list.
	_, err = Normalize(first)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedResponse))
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "extattrs not an object", raw: `{"extattrs":[1]}`, wantErr: "extattrs is array"},
		{name: "entry not an object", raw: `{"extattrs":{"site":"NYC"}}`, wantErr: `extattrs["site"] is string`},
		{name: "entry without value", raw: `{"extattrs":{"site":{"inheritance_source":{}}}}`, wantErr: `extattrs["site"] has no value`},
		{name: "inheritance source not an object", raw: `{"extattrs":{"site":{"value":"a","inheritance_source":"x"}}}`, wantErr: "inheritance_source is string"},
		{name: "options not a list", raw: `{"options":{"name":"dhcp"}}`, wantErr: "options is object"},
		{name: "option not an object", raw: `{"options":["dhcp"]}`, wantErr: "options[0] is string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(decode(t, tt.raw))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedResponse))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func BenchmarkNormalize(b *testing.B) {
	var raw map[string]interface{}
	if err := jsonpool.UnmarshalNumber([]byte(`{"network":"10.0.0.0/24","extattrs":{"site":{"value":"NYC","inheritance_source":{"_default":"LAX"}},"Owner":{"value":"netops"}},"options":[{"name":"routers","value":"10.0.0.1"},{"name":"domain-name","value":"corp.example"}]}`), &raw); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec, err := Normalize(raw)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := EncodeCompact(rec); err != nil {
			b.Fatal(err)
		}
	}
}
