package testsupport

// RegistryHeader is the registry layout used by fixtures. It matches the
// default registry column names and carries two secondary identifier columns.
var RegistryHeader = []string{
	"udi_di", "manufacturer", "brand", "catalog_number", "model_number",
	"publish_date", "identifiers_0_id", "identifiers_1_id",
}

// RegistryRow is one fixture registry entry.
type RegistryRow struct {
	Identifier   string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string
	PublishDate  string
	Secondary    []string
}

// RegistryRows renders fixture entries in RegistryHeader order.
func RegistryRows(entries ...RegistryRow) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		sec := make([]string, 2)
		copy(sec, e.Secondary)
		rows = append(rows, []string{
			e.Identifier, e.Manufacturer, e.Brand, e.Catalog, e.Model, e.PublishDate, sec[0], sec[1],
		})
	}
	return rows
}

// EventHeader is the event layout used by fixtures. It matches the default
// event column names.
var EventHeader = []string{
	"report_id", "udi_di", "udi_public", "manufacturer", "brand",
	"catalog_number", "model_number", "date_received",
}

// EventRow is one fixture adverse-event report.
type EventRow struct {
	ReportID     string
	Identifier   string
	Public       string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string
	DateReceived string
}

// EventRows renders fixture reports in EventHeader order.
func EventRows(events ...EventRow) [][]string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.ReportID, e.Identifier, e.Public, e.Manufacturer, e.Brand, e.Catalog, e.Model, e.DateReceived,
		})
	}
	return rows
}
