package schema

// Table names of the rental and logistics catalog.
const (
	TableTenant            = "Tenant"
	TableUser              = "User"
	TablePerson            = "Person"
	TableAddress           = "Address"
	TableVehicle           = "Vehicle"
	TableEquipment         = "Equipment"
	TableRental            = "Rental"
	TableRentalItem        = "RentalItem"
	TableFinancialCategory = "FinancialCategory"
	TableFinancialTitle    = "FinancialTitle"
	TablePayment           = "Payment"
	TableRoute             = "Route"
	TableRouteStop         = "RouteStop"
	TableMaintenance       = "Maintenance"
	TableIntegration       = "Integration"
	TableAuditLog          = "AuditLog"
	TableAccessLog         = "AccessLog"
)

// TenantField is the field that carries the isolation domain on multi-tenant tables
const TenantField = "tenantId"

// CatalogTables returns the descriptors of every table in the rental catalog
func CatalogTables() []TableDescriptor {
	return []TableDescriptor{
		{Name: TableTenant},
		{
			Name:            TableUser,
			Dependencies:    []string{TableTenant},
			MultiTenant:     true,
			SensitiveFields: []SensitiveField{{Name: "password", Policy: MaskDrop}},
		},
		{Name: TablePerson, Dependencies: []string{TableTenant}, MultiTenant: true},
		{Name: TableAddress, Dependencies: []string{TablePerson}, MultiTenant: true},
		{Name: TableVehicle, Dependencies: []string{TableTenant}, MultiTenant: true},
		{Name: TableEquipment, Dependencies: []string{TableTenant}, MultiTenant: true},
		{
			Name:         TableRental,
			Dependencies: []string{TablePerson, TableAddress, TableUser},
			MultiTenant:  true,
		},
		{Name: TableRentalItem, Dependencies: []string{TableRental, TableEquipment}, MultiTenant: true},
		{Name: TableFinancialCategory, Dependencies: []string{TableTenant}, MultiTenant: true},
		{
			Name:         TableFinancialTitle,
			Dependencies: []string{TableFinancialCategory, TablePerson, TableRental},
			MultiTenant:  true,
		},
		{Name: TablePayment, Dependencies: []string{TableFinancialTitle}, MultiTenant: true},
		{Name: TableRoute, Dependencies: []string{TableVehicle, TableUser}, MultiTenant: true},
		{
			Name:         TableRouteStop,
			Dependencies: []string{TableRoute, TableRental, TableAddress},
			MultiTenant:  true,
		},
		{
			Name:         TableMaintenance,
			Dependencies: []string{TableEquipment, TableVehicle},
			MultiTenant:  true,
		},
		{
			Name:         TableIntegration,
			Dependencies: []string{TableTenant},
			MultiTenant:  true,
			SensitiveFields: []SensitiveField{
				{Name: "apiKey", Policy: MaskReplace},
				{Name: "apiSecret", Policy: MaskReplace},
				{Name: "webhookSecret", Policy: MaskReplace},
			},
		},
		{Name: TableAuditLog, Dependencies: []string{TableUser}, MultiTenant: true},
		{Name: TableAccessLog, Dependencies: []string{TableUser}, MultiTenant: true},
	}
}

// DefaultRegistry returns the registry for the rental catalog
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(CatalogTables(),
		WithDefaultExportSet(
			TableUser, TablePerson, TableAddress, TableVehicle, TableEquipment,
			TableRental, TableRentalItem, TableFinancialCategory, TableFinancialTitle,
			TablePayment, TableRoute, TableRouteStop, TableMaintenance, TableIntegration,
		),
		WithLogTables(TableAuditLog, TableAccessLog),
		WithModule("rentals", TableRental, TableRentalItem),
		WithModule("persons", TablePerson, TableAddress),
		WithModule("financial", TableFinancialCategory, TableFinancialTitle, TablePayment),
		WithModule("routing", TableRoute, TableRouteStop),
		WithModule("maintenance", TableMaintenance),
		WithModule("fleet", TableVehicle, TableEquipment),
		WithModule("integrations", TableIntegration),
		WithModule("logs", TableAuditLog, TableAccessLog),
		WithModule("users", TableUser),
	)
	if err != nil {
		panic("schema: invalid catalog: " + err.Error())
	}
	return registry
}
