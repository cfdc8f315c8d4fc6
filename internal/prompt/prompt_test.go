package prompt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := NewConsole(strings.NewReader(tt.input), &out)
		got, err := c.Confirm(context.Background(), "Retry record 1?")
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Retry record 1? [y/N]: ", out.String())
	}
}

func TestConsoleReadsSuccessiveAnswers(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("y\nn\n"), &out)

	first, err := c.Confirm(context.Background(), "first?")
	require.NoError(t, err)
	second, err := c.Confirm(context.Background(), "second?")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestConsoleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsole(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := c.Confirm(ctx, "q?")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFromPolicy(t *testing.T) {
	approve, err := FromPolicy("approve", nil, nil)
	require.NoError(t, err)
	ok, err := approve.Confirm(context.Background(), "q?")
	require.NoError(t, err)
	assert.True(t, ok)

	deny, err := FromPolicy("DENY", nil, nil)
	require.NoError(t, err)
	ok, err = deny.Confirm(context.Background(), "q?")
	require.NoError(t, err)
	assert.False(t, ok)

	ask, err := FromPolicy("ask", strings.NewReader("y\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &Console{}, ask)

	_, err = FromPolicy("sometimes", nil, nil)
	require.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestStaticRecordsQuestions(t *testing.T) {
	s := Always(false)
	_, _ = s.Confirm(context.Background(), "a?")
	_, _ = s.Confirm(context.Background(), "b?")
	assert.Equal(t, []string{"a?", "b?"}, s.Questions())
}
