package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableResolve(t *testing.T) {
	tests := []struct {
		name   string
		want   Code
		wantOK bool
	}{
		{"ethash", Ethash, true},
		{"etchash", Etchash, true},
		{"ubqhash", Ubqhash, true},
		{"EtcHash", Etchash, true},
		{"", Unset, false},
		{"scrypt", Unset, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := Table{}.Resolve(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, code)
			}
		})
	}
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "unset", Unset.String())
	assert.Equal(t, "ethash", Baseline.String())
	assert.Equal(t, "ubqhash", Ubqhash.String())
	assert.Equal(t, "unknown", Code(42).String())
}

func TestResolverFunc(t *testing.T) {
	r := ResolverFunc(func(name string) (Code, bool) { return Code(len(name)), true })
	code, ok := r.Resolve("abc")
	assert.True(t, ok)
	assert.Equal(t, Code(3), code)
}
