package httpengine

import "testing"

func TestSelectVHostMatchesHostIgnoringPort(t *testing.T) {
	a := &VHost{Host: "a.example.com"}
	def := &VHost{Host: "default.example.com"}
	e := New([]*VHost{def, a})

	if got := e.SelectVHost("a.example.com:8080"); got != a {
		t.Fatalf("expected vhost a, got %+v", got)
	}
	if got := e.SelectVHost("unknown.example.com"); got != def {
		t.Fatal("expected default vhost on miss")
	}
}

func TestResolveFilenameAppliesAliasThenDirRoot(t *testing.T) {
	v := &VHost{
		DirRoot: "/var/www",
		Aliases: []Alias{{SourcePrefix: "/static", TargetPrefix: "/srv/static"}},
	}
	if got := v.ResolveFilename("/static/app.js"); got != "/srv/static/app.js" {
		t.Fatalf("got %q", got)
	}
	if got := v.ResolveFilename("/about.html"); got != "/var/www/about.html" {
		t.Fatalf("got %q", got)
	}
}

func TestAliasRequiresPathBoundary(t *testing.T) {
	v := &VHost{
		DirRoot: "/var/www",
		Aliases: []Alias{{SourcePrefix: "/static", TargetPrefix: "/srv/static"}},
	}
	// "/staticfoo" must not match the "/static" alias (no boundary).
	if got := v.ResolveFilename("/staticfoo"); got != "/var/www/staticfoo" {
		t.Fatalf("alias matched without a path boundary: %q", got)
	}
}
