package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/catalog"
	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/gatherer"
	"github.com/sells-group/enrich-cli/internal/llm"
	"github.com/sells-group/enrich-cli/internal/migration"
	"github.com/sells-group/enrich-cli/internal/observe"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/proposer"
	"github.com/sells-group/enrich-cli/internal/reconciler"
	"github.com/sells-group/enrich-cli/internal/record"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/resolver"
	"github.com/sells-group/enrich-cli/internal/rowstore"
	"github.com/sells-group/enrich-cli/internal/search"
	"github.com/sells-group/enrich-cli/internal/sink"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/writer"
	anthropicpkg "github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/notion"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
	"github.com/sells-group/enrich-cli/pkg/salesforce"
)

// appEnv holds the dataset, the ticket store and the pipeline shared by the
// ask, run, chat and serve commands.
type appEnv struct {
	Pipeline   *pipeline.Pipeline
	Dataset    *dataset
	Store      store.Store // may be nil
	Timeline   *observe.Timeline
	Migrations proposer.MigrationWriter

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv opens the dataset, builds every collaborator from cfg and
// assembles the pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	ds, err := openDataset(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Dataset: ds, closers: []func() error{ds.Close}}
	fail := func(err error) (*appEnv, error) {
		env.Close()
		return nil, err
	}

	client, err := newLLM()
	if err != nil {
		return fail(err)
	}
	searchClient, err := newSearch()
	if err != nil {
		return fail(err)
	}

	var sf salesforce.Client
	if cfg.Writer.Driver == "salesforce" {
		if sf, err = connectSalesforce(); err != nil {
			return fail(err)
		}
	}

	w, err := newWriter(ds, sf)
	if err != nil {
		return fail(err)
	}
	cat, err := loadCatalog(ctx, ds, sf)
	if err != nil {
		return fail(err)
	}
	mw, err := newMigrationWriter(ctx)
	if err != nil {
		return fail(err)
	}
	env.Migrations = mw

	st, err := openStore(ctx)
	if err != nil {
		return fail(err)
	}
	if st != nil {
		env.Store = st
		env.closers = append(env.closers, st.Close)
	}

	env.Timeline = observe.NewTimeline(0, 0)
	obs := observe.Multi{sink.NewEventLog(cfg.Paths.LogsDir), observe.Zap{}, env.Timeline}

	var evidence gatherer.EvidenceSink = sink.NewEvidence(cfg.Paths.ScrapesDir)
	if st != nil {
		evidence = gatherer.MultiSink{evidence, store.Evidence{Store: st}}
	}

	resolverOpts := []resolver.Option{resolver.WithObserver(obs)}
	var (
		gathererOpts   []gatherer.Option
		reconcilerOpts []reconciler.Option
		proposerOpts   []proposer.Option
	)
	if client != nil {
		resolverOpts = append(resolverOpts, resolver.WithLLM(client))
		gathererOpts = append(gathererOpts, gatherer.WithLLM(client))
		reconcilerOpts = append(reconcilerOpts, reconciler.WithLLM(client))
		proposerOpts = append(proposerOpts, proposer.WithLLM(client))
	}

	flagger := sink.NewFlagger(cfg.Paths.MissingDir)
	deps := pipeline.Deps{
		Resolver: resolver.New(ds.Exec, flagger, resolver.Config{
			Table:              ds.Table,
			PrimaryKey:         ds.PrimaryKey,
			Catalog:            cat.Names(),
			Synonyms:           mergeSynonyms(resolver.DefaultSynonyms, cat.Synonyms()),
			MaxColumns:         cfg.LLM.MaxColumns,
			CandidateURLFields: cfg.Dataset.CandidateURLFields,
			ContextColumns:     nonEmptySlice(cfg.Dataset.ContextColumns),
			MaxTokens:          cfg.LLM.MaxTokens,
		}, resolverOpts...),
		Gatherer: gatherer.New(searchClient, evidence, gatherer.Config{
			ResultLimit:  cfg.Search.ResultLimit,
			HostDenylist: nonEmptySlice(cfg.Search.HostDenylist),
			Concurrency:  cfg.Search.Concurrency,
			MaxLLMTasks:  cfg.Search.MaxLLMTasks,
			MaxTokens:    cfg.LLM.MaxTokens,
		}, gathererOpts...),
		Reconciler: reconciler.New(w, sink.NewEscalator(cfg.Paths.EscalationsDir), reconciler.Config{
			AllowedColumns: cat.Writable(),
			MaxTokens:      cfg.LLM.MaxTokens,
		}, reconcilerOpts...),
		Proposer: proposer.New(mw, proposer.Config{
			Table:     ds.Table,
			MaxTokens: cfg.LLM.MaxTokens,
		}, proposerOpts...),
		Flagger:  flagger,
		Store:    st,
		Observer: obs,
	}

	p, err := pipeline.New(pipeline.Observe(deps, obs))
	if err != nil {
		return fail(err)
	}
	env.Pipeline = p

	zap.L().Info("environment ready",
		zap.String("dataset", cfg.Dataset.Driver),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("search", cfg.Search.Provider),
		zap.String("writer", cfg.Writer.Driver),
		zap.Int("catalog_columns", len(cat.Columns)),
		zap.Bool("store", st != nil),
	)
	return env, nil
}

// dataset is the opened question table and the handles writers need.
type dataset struct {
	Exec       rowstore.Executor
	Browser    rowstore.Browser
	Table      string
	PrimaryKey string

	table  *rowstore.Table
	pool   *pgxpool.Pool
	sqlite *rowstore.SQLite
}

func openDataset(ctx context.Context) (*dataset, error) {
	ds := &dataset{Table: cfg.Dataset.Table, PrimaryKey: cfg.Dataset.PrimaryKey}

	switch cfg.Dataset.Driver {
	case "csv", "xlsx":
		t, err := rowstore.OpenTable(cfg.Dataset.Path, cfg.Dataset.Table)
		if err != nil {
			return nil, eris.Wrap(err, "open dataset")
		}
		ds.table, ds.Exec, ds.Browser = t, t, t
	case "postgres":
		pool, err := db.Open(ctx, cfg.Dataset.DatabaseURL, db.PoolConfig{MaxConns: cfg.Dataset.MaxConns})
		if err != nil {
			return nil, eris.Wrap(err, "open dataset")
		}
		pg := rowstore.NewPostgres(pool, cfg.Dataset.Table)
		ds.pool, ds.Exec, ds.Browser = pool, pg, pg
	case "sqlite":
		s, err := rowstore.OpenSQLite(cfg.Dataset.Path, cfg.Dataset.Table)
		if err != nil {
			return nil, eris.Wrap(err, "open dataset")
		}
		ds.sqlite, ds.Exec, ds.Browser = s, s, s
	default:
		return nil, eris.Errorf("unsupported dataset driver: %s", cfg.Dataset.Driver)
	}
	return ds, nil
}

// Close releases the dataset's database handles.
func (d *dataset) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.sqlite != nil {
		return d.sqlite.Close()
	}
	return nil
}

// Record fetches one row by primary key. A missing row is nil without error.
func (d *dataset) Record(ctx context.Context, id string) (record.Row, error) {
	rows, err := d.Exec.Run(ctx, rowstore.PointQuery(d.Exec, d.Table, d.PrimaryKey, id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Columns implements rowstore.Browser.
func (d *dataset) Columns(ctx context.Context) ([]string, error) { return d.Browser.Columns(ctx) }

// Count implements rowstore.Browser.
func (d *dataset) Count(ctx context.Context) (int, error) { return d.Browser.Count(ctx) }

// Page implements rowstore.Browser.
func (d *dataset) Page(ctx context.Context, offset, limit int) ([]record.Row, error) {
	return d.Browser.Page(ctx, offset, limit)
}

func newLLM() (llm.Client, error) {
	var client llm.Client
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		opts := []anthropicpkg.Option{anthropicpkg.WithMaxRetries(cfg.Anthropic.MaxRetries)}
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client = llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key, opts...), firstNonEmpty(cfg.LLM.Model, cfg.Anthropic.Model))
	case "openai":
		client = llm.NewOpenAI(llm.NewOpenAIClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL), firstNonEmpty(cfg.LLM.Model, cfg.OpenAI.Model))
	case "perplexity":
		client = llm.NewPerplexity(newPerplexityClient(0), firstNonEmpty(cfg.LLM.Model, cfg.Perplexity.Model))
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
	return llm.WithSettings(client, llm.Settings{
		TokenBudget: cfg.LLM.TokenBudget,
		SafetyNotes: cfg.LLM.SafetyNotes,
	}), nil
}

// newSearch builds the configured provider behind retry, rate limit and
// cache decorators, innermost first. No provider yields search.Null.
func newSearch() (search.Client, error) {
	timeout := time.Duration(cfg.Search.TimeoutSecs) * time.Second

	var base search.Client
	switch cfg.Search.Provider {
	case "", "none":
		return search.Null{}, nil
	case "jina":
		opts := []jina.Option{jina.WithTimeout(timeout)}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		base = search.NewJina(jina.NewClient(cfg.Jina.Key, opts...))
	case "perplexity":
		base = search.NewPerplexity(newPerplexityClient(timeout), cfg.Perplexity.Model)
	default:
		return nil, eris.Errorf("unsupported search provider: %s", cfg.Search.Provider)
	}

	retry := resilience.DefaultRetryConfig().WithAttempts(cfg.Search.Retries)
	var c search.Client = search.NewRetrying(base, retry, cfg.Search.Provider)
	c = search.NewThrottled(c, cfg.Search.RateLimitPerMin)
	if cfg.Search.CacheTTLMins > 0 {
		c = search.NewCached(c, time.Duration(cfg.Search.CacheTTLMins)*time.Minute)
	}
	return c, nil
}

func newPerplexityClient(timeout time.Duration) perplexity.Client {
	opts := []perplexity.Option{perplexity.WithModel(cfg.Perplexity.Model)}
	if cfg.Perplexity.BaseURL != "" {
		opts = append(opts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, perplexity.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return perplexity.NewClient(cfg.Perplexity.Key, opts...)
}

func connectSalesforce() (salesforce.Client, error) {
	sf, err := salesforce.Connect(salesforce.Credentials{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPath:  cfg.Salesforce.KeyPath,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect salesforce")
	}
	return sf, nil
}

// newWriter picks the record writer. The dataset, postgres and sqlite
// drivers all write back through the opened dataset.
func newWriter(ds *dataset, sf salesforce.Client) (reconciler.RecordWriter, error) {
	switch cfg.Writer.Driver {
	case "", "dataset", "postgres", "sqlite":
		switch {
		case ds.table != nil:
			return writer.NewTable(ds.table, ds.PrimaryKey), nil
		case ds.pool != nil:
			return writer.NewPostgres(ds.pool, ds.Table, ds.PrimaryKey), nil
		case ds.sqlite != nil:
			return writer.NewSQLite(ds.sqlite.DB(), ds.Table, ds.PrimaryKey), nil
		}
		return writer.Null{}, nil
	case "salesforce":
		if sf == nil {
			return nil, eris.New("salesforce writer requires a salesforce client")
		}
		return writer.NewSalesforce(sf, cfg.Writer.SObject), nil
	case "none":
		return writer.Null{}, nil
	default:
		return nil, eris.Errorf("unsupported writer driver: %s", cfg.Writer.Driver)
	}
}

// loadCatalog prefers an explicit catalog file, then a Notion database,
// then the Salesforce object being written, then the dataset's own header.
func loadCatalog(ctx context.Context, ds *dataset, sf salesforce.Client) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	switch {
	case cfg.Catalog.Path != "":
		cat, err = catalog.LoadFile(cfg.Catalog.Path)
	case cfg.Catalog.NotionDB != "":
		cat, err = catalog.LoadNotion(ctx, notion.NewClient(cfg.Notion.Token), cfg.Catalog.NotionDB)
	case sf != nil:
		cat, err = catalog.LoadSObject(ctx, sf, cfg.Writer.SObject)
	default:
		var cols []string
		cols, err = ds.Columns(ctx)
		cat = catalog.FromNames(cols)
	}
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}
	return cat, nil
}

func newMigrationWriter(ctx context.Context) (proposer.MigrationWriter, error) {
	switch cfg.Migrations.Backend {
	case "", "file":
		return migration.NewFile(cfg.Paths.MigrationsDir), nil
	case "minio":
		m, err := newMinIO()
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, eris.Wrap(err, "ensure migrations bucket")
		}
		return m, nil
	default:
		return nil, eris.Errorf("unsupported migrations backend: %s", cfg.Migrations.Backend)
	}
}

func newMinIO() (*migration.MinIO, error) {
	mc, err := migration.NewMinIOClient(migration.MinIOConfig(cfg.MinIO))
	if err != nil {
		return nil, err
	}
	return migration.NewMinIO(mc, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil
}

// openStore returns nil when no store driver is configured.
func openStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func mergeSynonyms(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func nonEmptySlice(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
