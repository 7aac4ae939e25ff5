package scanning_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

func TestNormalizeUsername(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain handle", in: "alice_doe", want: "alice_doe"},
		{name: "surrounding whitespace trimmed", in: "  alice\t", want: "alice"},
		{name: "fullwidth compatibility folds", in: "ａｌｉｃｅ", want: "alice"},
		{name: "ligature folds", in: "ﬁsher", want: "fisher"},
		{name: "dots and dashes kept", in: "john.smith-77", want: "john.smith-77"},
		{name: "max length accepted", in: strings.Repeat("a", 64), want: strings.Repeat("a", 64)},
		{name: "empty", in: "", wantErr: true},
		{name: "only whitespace", in: "   ", wantErr: true},
		{name: "inner space", in: "alice doe", wantErr: true},
		{name: "control character", in: "alice\x00doe", wantErr: true},
		{name: "too long", in: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scanning.NormalizeUsername(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
