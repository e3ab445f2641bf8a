package issue

import "fmt"

// Product identifies the kind of backend a site talks to.
type Product string

const (
	ProductJira      Product = "jira"
	ProductBitbucket Product = "bitbucket"
	ProductLocal     Product = "local"
)

// Valid reports whether p is a known product.
func (p Product) Valid() bool {
	switch p {
	case ProductJira, ProductBitbucket, ProductLocal:
		return true
	}
	return false
}

// Site identifies one backend instance.
type Site struct {
	ID      string
	Name    string
	Product Product
	BaseURL string
}

func (s Site) String() string {
	if s.Name != "" && s.Name != s.ID {
		return fmt.Sprintf("%s (%s)", s.Name, s.ID)
	}
	return s.ID
}
