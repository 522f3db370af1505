package catalog

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/pkg/notion"
)

// LoadNotion reads the active rows of a Notion column registry. Each page
// is a column with properties Name (title), Description (rich text),
// DataType (select), Synonyms (multi-select) and ReadOnly (checkbox).
func LoadNotion(ctx context.Context, client notion.Client, dbID string) (*Catalog, error) {
	pages, err := notion.QueryAll(ctx, client, dbID, notion.ActiveFilter())
	if err != nil {
		return nil, eris.Wrap(err, "catalog: load notion registry")
	}

	c := &Catalog{}
	for _, p := range pages {
		col, ok := parseColumnPage(p)
		if !ok {
			zap.L().Warn("catalog: skipping page without Name",
				zap.String("page_id", string(p.ID)),
			)
			continue
		}
		c.Columns = append(c.Columns, col)
	}
	return c.normalized(), nil
}

func parseColumnPage(p notionapi.Page) (Column, bool) {
	col := Column{
		Name:        notion.Text(p.Properties, "Name"),
		Description: notion.Text(p.Properties, "Description"),
		DataType:    notion.Text(p.Properties, "DataType"),
		Synonyms:    notion.Options(p.Properties, "Synonyms"),
		ReadOnly:    notion.Checked(p.Properties, "ReadOnly"),
	}
	return col, col.Name != ""
}
