package schema_test

import (
	"testing"

	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		full   string
		want   schema.Key
	}{
		{name: "plain", domain: "example.com", full: "John Smith", want: schema.Key{Domain: "example.com", Name: "john smith"}},
		{name: "case and padding", domain: " Example.COM ", full: "  John   Smith ", want: schema.Key{Domain: "example.com", Name: "john smith"}},
		{name: "empty", domain: "", full: "", want: schema.Key{}},
		{name: "website value", domain: "https://www.Example.com/", full: "Jane Doe", want: schema.Key{Domain: "example.com", Name: "jane doe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schema.NewKey(tt.domain, tt.full); got != tt.want {
				t.Fatalf("NewKey(%q, %q)=%#v want=%#v", tt.domain, tt.full, got, tt.want)
			}
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "example.com"},
		{in: " Example.COM ", want: "example.com"},
		{in: "https://www.example.com/", want: "example.com"},
		{in: "http://example.com:8080/team?x=1", want: "example.com"},
		{in: "www.example.com/about", want: "example.com"},
		{in: "mail.example.com.", want: "mail.example.com"},
		{in: "https://user:pw@example.com", want: "example.com"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := schema.NormalizeDomain(tt.in); got != tt.want {
				t.Fatalf("NormalizeDomain(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestColumnMatches(t *testing.T) {
	tests := []struct {
		header string
		col    schema.Column
		want   bool
	}{
		{header: "Name", col: schema.NameColumn, want: true},
		{header: " Full Name ", col: schema.NameColumn, want: true},
		{header: "FULL_NAME", col: schema.NameColumn, want: true},
		{header: "company_domain", col: schema.DomainColumn, want: true},
		{header: "Website", col: schema.DomainColumn, want: true},
		{header: "email", col: schema.DomainColumn, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := tt.col.Matches(tt.header); got != tt.want {
				t.Fatalf("%s.Matches(%q)=%t want=%t", tt.col.Name, tt.header, got, tt.want)
			}
		})
	}
}

func TestOutputHeader(t *testing.T) {
	got := schema.OutputHeader()
	want := []string{"name", "domain", "email", "method"}
	if len(got) != len(want) {
		t.Fatalf("OutputHeader()=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OutputHeader()=%v want=%v", got, want)
		}
	}
}
