package workerpool

import "testing"

func TestParseModel(t *testing.T) {
	cases := map[string]Model{
		"iterative": ModelIterative,
		"fork":      ModelFork,
		"prefork":   ModelPrefork,
		"bogus":     ModelIterative,
		"":          ModelIterative,
	}
	for name, want := range cases {
		if got := ParseModel(name); got != want {
			t.Errorf("ParseModel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestModelString(t *testing.T) {
	cases := []struct {
		m    Model
		want string
	}{
		{ModelIterative, "iterative"},
		{ModelFork, "fork"},
		{ModelPrefork, "prefork"},
		{Model(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.m.String(); got != c.want {
			t.Errorf("Model(%d).String() = %q, want %q", c.m, got, c.want)
		}
	}
}
