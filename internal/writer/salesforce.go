package writer

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/pkg/salesforce"
)

// Salesforce writes updates to a single SObject record.
type Salesforce struct {
	client  salesforce.Client
	sObject string
}

// NewSalesforce creates a writer for sObject (Account when empty).
func NewSalesforce(client salesforce.Client, sObject string) *Salesforce {
	if sObject == "" {
		sObject = "Account"
	}
	return &Salesforce{client: client, sObject: sObject}
}

// UpdateRecord implements reconciler.RecordWriter.
func (w *Salesforce) UpdateRecord(ctx context.Context, recordID string, payload map[string]any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := w.client.UpdateOne(ctx, w.sObject, recordID, payload); err != nil {
		return eris.Wrapf(err, "writer: salesforce update %s %s", w.sObject, recordID)
	}
	return nil
}
