package noteconv

import "testing"

func TestName(t *testing.T) {
	cases := []struct {
		note int
		want string
	}{
		{60, "C4"},
		{69, "A4"},
		{0, "C-1"},
		{127, "G9"},
		{61, "C#4"},
	}
	for _, c := range cases {
		if got := Name(c.note); got != c.want {
			t.Errorf("Name(%d) = %q, want %q", c.note, got, c.want)
		}
	}
}
