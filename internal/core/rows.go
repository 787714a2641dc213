package core

import (
	"fmt"
	"strings"
)

// AllValues is the filter sentinel that selects every row.
const AllValues = "Todas"

// Variant names.
const (
	VariantManagers = "managers"
	VariantClients  = "clients"
)

type (
	// Row is one flattened, display-ready report record.
	Row interface {
		Fields() []string
	}

	// ManagerRow is the UTM-by-manager projection.
	ManagerRow struct {
		ManagerName string
		UTMSource   string
		CreatedAt   string // dd/mm/yyyy, "" when the upstream date is unparseable
	}

	// ClientRow is the UTM-plus-client projection. CreatedAt carries the
	// upstream value verbatim and is not part of the exported columns.
	ClientRow struct {
		UTMSource   string
		ClientName  string
		ClientEmail string
		ClientPhone string
		ClientCPF   string
		CreatedAt   string
	}

	// Variant describes one report shape.
	Variant struct {
		Name         string
		Title        string
		FileName     string
		Columns      []string
		FilterColumn string
		Dedupe       bool
		Project      func(m Manager, tx Transaction) Row
	}
)

func (r ManagerRow) Fields() []string {
	return []string{r.ManagerName, r.UTMSource, r.CreatedAt}
}

func (r ClientRow) Fields() []string {
	return []string{r.UTMSource, r.ClientName, r.ClientEmail, r.ClientPhone, r.ClientCPF}
}

// ManagersVariant lists UTM sources per manager. Duplicate
// (manager, utm, date) rows are collapsed.
var ManagersVariant = Variant{
	Name:         VariantManagers,
	Title:        "UTM Sources por Gerente",
	FileName:     "utm_gerentes.csv",
	Columns:      []string{"Manager Name", "UTM Source", "Created At"},
	FilterColumn: "UTM Source",
	Dedupe:       true,
	Project: func(m Manager, tx Transaction) Row {
		date, _ := FormatDate(tx.CreatedAt)
		return ManagerRow{
			ManagerName: m.Name,
			UTMSource:   tx.UTMSource,
			CreatedAt:   date,
		}
	},
}

// ClientsVariant lists UTM sources with the client contact data. Rows are
// not deduplicated.
var ClientsVariant = Variant{
	Name:         VariantClients,
	Title:        "UTM Sources por Cliente",
	FileName:     "utm_clientes.csv",
	Columns:      []string{"UTM Source", "Client Name", "Client Email", "Client Phone", "Client CPF"},
	FilterColumn: "UTM Source",
	Project: func(_ Manager, tx Transaction) Row {
		return ClientRow{
			UTMSource:   tx.UTMSource,
			ClientName:  tx.ClientName,
			ClientEmail: tx.ClientEmail,
			ClientPhone: tx.ClientPhone,
			ClientCPF:   tx.ClientCPF,
			CreatedAt:   tx.CreatedAt,
		}
	},
}

var variants = []Variant{ManagersVariant, ClientsVariant}

// LookupVariant returns the variant registered under name.
func LookupVariant(name string) (Variant, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, v := range variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// ParseVariants parses a comma separated list of variant names, keeping
// order and dropping repeats.
func ParseVariants(list string) ([]Variant, error) {
	var out []Variant
	seen := map[string]bool{}
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		v, ok := LookupVariant(name)
		if !ok {
			return nil, fmt.Errorf("unknown report variant %q", name)
		}
		seen[name] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no report variants in %q", list)
	}
	return out, nil
}

// FilterIndex returns the position of the filter column, or -1.
func (v Variant) FilterIndex() int {
	for i, c := range v.Columns {
		if c == v.FilterColumn {
			return i
		}
	}
	return -1
}
