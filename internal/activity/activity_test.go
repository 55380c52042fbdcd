package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{name: "commit", input: "commit", want: KindCommit},
		{name: "pull request mixed case", input: " Pull_Request ", want: KindPullRequest},
		{name: "review", input: "review", want: KindReview},
		{name: "unknown", input: "deployment", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseKind(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewNaturalKey(t *testing.T) {
	t.Parallel()

	key, err := NewNaturalKey(KindIssue, "  42 ")
	require.NoError(t, err)
	assert.Equal(t, NaturalKey{Kind: KindIssue, ExternalID: "42"}, key)
	assert.Equal(t, "issue:42", key.String())

	_, err = NewNaturalKey(KindIssue, " ")
	assert.ErrorIs(t, err, ErrEmptyExternalID)

	_, err = NewNaturalKey(Kind("tag"), "1")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNaturalKey_Equality(t *testing.T) {
	t.Parallel()

	a := RawEvent{Kind: KindCommit, ExternalID: "abc", SummaryText: "first"}
	b := RawEvent{Kind: KindCommit, ExternalID: "abc", SummaryText: "edited upstream"}
	c := RawEvent{Kind: KindIssue, ExternalID: "abc"}

	seen := map[NaturalKey]int{}
	for _, e := range []RawEvent{a, b, c} {
		seen[e.Key()]++
	}

	assert.Len(t, seen, 2)
	assert.Equal(t, 2, seen[a.Key()])
	assert.Equal(t, 1, seen[c.Key()])
}
