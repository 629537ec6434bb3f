package uischema

import "testing"

func TestSanitizeHelpMarkup(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Frames read per IO batch",
			want: "Frames read per IO batch",
		},
		{
			name: "inline emphasis kept",
			in:   "Use <code>.h5</code> for <b>large</b> recordings",
			want: "Use <code>.h5</code> for <b>large</b> recordings",
		},
		{
			name: "script stripped",
			in:   `Relative to root<script>alert("x")</script>`,
			want: "Relative to root",
		},
		{
			name: "event handlers stripped",
			in:   `<b onclick="steal()">bold</b>`,
			want: "<b>bold</b>",
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeHelpMarkup(tc.in); got != tc.want {
				t.Fatalf("sanitize %q: want %q got %q", tc.in, tc.want, got)
			}
		})
	}
}
