package backup

import (
	"testing"
	"time"

	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newCatalogStore returns a memory store with every catalog table, two
// tenants and a small dataset for tenantA
func newCatalogStore(t *testing.T) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore(schema.DefaultRegistry().Names()...)
	seedTenants(store)
	seedDataset(store, tenantA)
	return store
}

func seedTenants(store *database.MemoryStore) {
	store.Seed(schema.TableTenant,
		database.Record{"id": tenantA, "name": "Acme Rentals"},
		database.Record{"id": tenantB, "name": "Beta Logistics"},
	)
}

func seedDataset(store *database.MemoryStore, tenant string) {
	created := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	store.Seed(schema.TableUser,
		database.Record{"id": tenant + "-u1", "tenantId": tenant, "email": "admin@" + tenant, "password": "hash-1", "status": "ACTIVE"},
		database.Record{"id": tenant + "-u2", "tenantId": tenant, "email": "ops@" + tenant, "password": "hash-2", "status": "ACTIVE"},
	)
	store.Seed(schema.TablePerson,
		database.Record{"id": tenant + "-p1", "tenantId": tenant, "name": "Ana Souza", "document": "123.456.789-00", "createdAt": created},
		database.Record{"id": tenant + "-p2", "tenantId": tenant, "name": "Bruno Lima", "document": "987.654.321-00", "createdAt": created},
		database.Record{"id": tenant + "-p3", "tenantId": tenant, "name": "Carla Dias", "document": "111.222.333-44", "createdAt": created},
	)
	store.Seed(schema.TableAddress,
		database.Record{"id": tenant + "-a1", "tenantId": tenant, "personId": tenant + "-p1", "city": "Recife"},
	)
	store.Seed(schema.TableIntegration,
		database.Record{"id": tenant + "-i1", "tenantId": tenant, "provider": "maps", "apiKey": "secret-key", "apiSecret": nil},
	)
	store.Seed(schema.TableRental,
		database.Record{"id": tenant + "-r1", "tenantId": tenant, "personId": tenant + "-p1", "total": 1250.5, "days": int64(3)},
	)
}

func recordsOf(store *database.MemoryStore, table, tenant string) []database.Record {
	var out []database.Record
	for _, r := range store.Records(table) {
		if r[schema.TenantField] == tenant {
			out = append(out, r)
		}
	}
	return out
}

func testManifest(tables ...string) *Manifest {
	return &Manifest{
		SchemaVersion:  SchemaVersion,
		SystemVersion:  "test",
		CreatedAt:      fixedNow,
		IsolationID:    tenantA,
		IsolationName:  "Acme Rentals",
		Format:         FormatXLSX,
		IncludedTables: tables,
	}
}
