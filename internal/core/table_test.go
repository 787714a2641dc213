package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerTable(rows ...ManagerRow) *Table {
	tbl := NewTable(ManagersVariant)
	for _, r := range rows {
		tbl.Append(r)
	}
	return tbl
}

func TestManagersProjectionDegradesBadDate(t *testing.T) {
	row := ManagersVariant.Project(Manager{ID: "1", Name: "Ana"}, Transaction{UTMSource: "fb", CreatedAt: "garbage"})
	assert.Equal(t, ManagerRow{ManagerName: "Ana", UTMSource: "fb", CreatedAt: ""}, row)
}

func TestClientsProjectionKeepsRawDate(t *testing.T) {
	row := ClientsVariant.Project(Manager{}, Transaction{UTMSource: "ig", CreatedAt: "garbage", ClientName: "Bia"}).(ClientRow)
	assert.Equal(t, "garbage", row.CreatedAt)
	assert.Len(t, row.Fields(), len(ClientsVariant.Columns))
}

func TestTableDedupeIsIdempotent(t *testing.T) {
	tbl := managerTable(
		ManagerRow{"Ana", "google", "01/01/2024"},
		ManagerRow{"Ana", "google", "01/01/2024"},
		ManagerRow{"Ana", "fb", "01/01/2024"},
		ManagerRow{"Bruno", "google", "01/01/2024"},
		ManagerRow{"Ana", "google", "01/01/2024"},
	)

	once := tbl.Dedupe()
	twice := once.Dedupe()
	require.Equal(t, 3, once.Len())
	assert.Equal(t, once.Records(), twice.Records())
	assert.Equal(t, 5, tbl.Len(), "dedupe mutated the source table")
	assert.Equal(t, ManagerRow{"Ana", "google", "01/01/2024"}, once.Rows()[0])
}

func TestTableDedupeSeparatorInValues(t *testing.T) {
	tbl := managerTable(
		ManagerRow{"a\x1fb", "c", "01/01/2024"},
		ManagerRow{"a", "b\x1fc", "01/01/2024"},
	)
	assert.Equal(t, 2, tbl.Dedupe().Len())
}

func TestTableFilterAndValues(t *testing.T) {
	tbl := managerTable(
		ManagerRow{"Ana", "google", "01/01/2024"},
		ManagerRow{"Ana", "", "01/01/2024"},
		ManagerRow{"Bruno", "fb", "02/01/2024"},
		ManagerRow{"Caio", "google", "03/01/2024"},
	)

	assert.Equal(t, []string{"google", "fb"}, tbl.FilterValues())
	assert.Equal(t, 2, tbl.Filter("google").Len())
	assert.Equal(t, 4, tbl.Filter(AllValues).Len())
	assert.Equal(t, 4, tbl.Filter("").Len())
	assert.Equal(t, 0, tbl.Filter("missing").Len())
}

func TestTableFilterMatchesOfferedValuesVerbatim(t *testing.T) {
	tbl := managerTable(
		ManagerRow{"Ana", "google ", "01/01/2024"},
		ManagerRow{"Bruno", "google", "01/01/2024"},
	)

	values := tbl.FilterValues()
	require.Equal(t, []string{"google ", "google"}, values)
	for _, v := range values {
		assert.Equal(t, 1, tbl.Filter(v).Len(), "filter %q", v)
	}
}

func TestRecordsHeaderFirst(t *testing.T) {
	recs := managerTable(ManagerRow{"Ana", "google", "01/01/2024"}).Records()
	require.Len(t, recs, 2)
	assert.Equal(t, ManagersVariant.Columns, recs[0])
	assert.Equal(t, []string{"Ana", "google", "01/01/2024"}, recs[1])
}

func TestParseVariants(t *testing.T) {
	vs, err := ParseVariants(" clients, managers ,clients")
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, VariantClients, vs[0].Name)
	assert.Equal(t, VariantManagers, vs[1].Name)

	_, err = ParseVariants("managers,bogus")
	assert.Error(t, err)
	_, err = ParseVariants(" , ")
	assert.Error(t, err)
}
