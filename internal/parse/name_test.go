package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  ParsedName
		expectErr bool
	}{
		{
			name:     "Washer",
			raw:      "W1",
			expected: ParsedName{Kind: KindWasher, Seq: 1},
		},
		{
			name:     "Dryer",
			raw:      "D3",
			expected: ParsedName{Kind: KindDryer, Seq: 3},
		},
		{
			name:     "Lower case with padding",
			raw:      "  w12 ",
			expected: ParsedName{Kind: KindWasher, Seq: 12},
		},
		{
			name:     "Dash separator",
			raw:      "D-2",
			expected: ParsedName{Kind: KindDryer, Seq: 2},
		},
		{
			name:     "Leading zero",
			raw:      "W07",
			expected: ParsedName{Kind: KindWasher, Seq: 7},
		},
		{
			name:      "Unknown prefix",
			raw:       "X1",
			expected:  ParsedName{Kind: KindUnknown},
			expectErr: true,
		},
		{
			name:      "No sequence",
			raw:       "Washer",
			expected:  ParsedName{Kind: KindUnknown},
			expectErr: true,
		},
		{
			name:      "Trailing text",
			raw:       "W1 (broken)",
			expected:  ParsedName{Kind: KindUnknown},
			expectErr: true,
		},
		{
			name:      "Empty",
			raw:       "",
			expected:  ParsedName{Kind: KindUnknown},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseName(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expected, parsed)
		})
	}
}
