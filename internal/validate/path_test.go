package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipyard-neo/bay/internal/apperror"
)

func TestRelativePath(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr apperror.Kind
	}{
		{name: "simple", raw: "a/b/c.txt", want: "a/b/c.txt"},
		{name: "strips dot segments", raw: "./a/./b", want: "a/b"},
		{name: "collapses internal traversal", raw: "a/b/../c", want: "a/c"},
		{name: "empty", raw: "", wantErr: apperror.KindInvalidPath},
		{name: "null byte", raw: "a\x00b", wantErr: apperror.KindInvalidPath},
		{name: "absolute", raw: "/etc/passwd", wantErr: apperror.KindInvalidPath},
		{name: "escapes root", raw: "../etc/passwd", wantErr: apperror.KindInvalidPath},
		{name: "escapes root after descending", raw: "a/../../b", wantErr: apperror.KindInvalidPath},
		{name: "resolves to root", raw: ".", wantErr: apperror.KindInvalidPath},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RelativePath(tc.raw)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantErr, apperror.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOptionalRelativePath(t *testing.T) {
	got, err := OptionalRelativePath("", "workdir")
	require.NoError(t, err)
	assert.Equal(t, "workdir", got)

	got, err = OptionalRelativePath("sub/dir", "workdir")
	require.NoError(t, err)
	assert.Equal(t, "sub/dir", got)
}
