package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/pkg/salesforce"
)

// LoadSObject builds a catalog from SObject metadata. Fields that reject
// updates are marked read-only.
func LoadSObject(ctx context.Context, client salesforce.Client, sObject string) (*Catalog, error) {
	desc, err := client.DescribeSObject(ctx, sObject)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: describe sobject")
	}
	c := &Catalog{}
	for _, f := range desc.Fields {
		c.Columns = append(c.Columns, Column{
			Name:        f.Name,
			Description: f.Label,
			DataType:    f.Type,
			ReadOnly:    !f.Updateable,
		})
	}
	return c.normalized(), nil
}
