package schema

import (
	"net/url"
	"strings"
)

// Entry is one input unit: a person's full name and the organization domain to search.
type Entry struct {
	FullName string
	Domain   string
}

// Key is the normalized identity of an Entry, used for dedup and progress lookup.
type Key struct {
	Domain string
	Name   string
}

// Key returns the normalized key for e.
func (e Entry) Key() Key {
	return NewKey(e.Domain, e.FullName)
}

// NewKey normalizes domain with NormalizeDomain and lower-cases name, collapsing inner
// whitespace to single spaces.
func NewKey(domain, name string) Key {
	return Key{
		Domain: NormalizeDomain(domain),
		Name:   strings.ToLower(strings.Join(strings.Fields(name), " ")),
	}
}

// NormalizeDomain reduces a domain or website value to a bare lower-case host name:
// scheme, credentials, port, path and a leading "www." are dropped.
// "https://www.Example.com:443/about" becomes "example.com".
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "//" + s
	}
	host := strings.TrimPrefix(s, "//")
	if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

func (k Key) String() string {
	return k.Domain + "/" + k.Name
}

// VerifiedRecord is one output row for an entry whose address was found.
type VerifiedRecord struct {
	Name   string
	Domain string
	Email  string
	Method string
}

// Column describes a CSV column and the header spellings accepted for it on input.
type Column struct {
	Name    string
	Aliases []string
}

// Matches reports whether a header cell names this column (case-insensitive).
func (c Column) Matches(header string) bool {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == c.Name {
		return true
	}
	for _, a := range c.Aliases {
		if h == a {
			return true
		}
	}
	return false
}

var (
	NameColumn   = Column{Name: "name", Aliases: []string{"full_name", "fullname", "full name"}}
	DomainColumn = Column{Name: "domain", Aliases: []string{"company_domain", "website"}}
	EmailColumn  = Column{Name: "email"}
	MethodColumn = Column{Name: "method"}
)

// InputColumns are the columns an input file must provide.
func InputColumns() []Column {
	return []Column{NameColumn, DomainColumn}
}

// OutputHeader returns the stable CSV header for VerifiedRecord.
func OutputHeader() []string {
	return []string{NameColumn.Name, DomainColumn.Name, EmailColumn.Name, MethodColumn.Name}
}
