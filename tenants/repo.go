package tenants

type Repo interface {
	Upsert(tenantData *Tenant) error
	Get(tenantID string) (*Tenant, error)
	GetBySlug(slug string) (*Tenant, error)
	List(offset, limit int) ([]*Tenant, error)
}
