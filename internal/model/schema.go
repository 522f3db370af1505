package model

// ColumnProposal describes a column suggested for review.
type ColumnProposal struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description"`
}

// SchemaProposal is a reviewable migration derived from escalated facts.
type SchemaProposal struct {
	TicketID            string           `json:"ticket_id"`
	Columns             []ColumnProposal `json:"columns"`
	MigrationStatements []string         `json:"migration_statements"`
	MigrationPath       string           `json:"migration_path,omitempty"`
	Notes               string           `json:"notes,omitempty"`
}
