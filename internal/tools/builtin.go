package tools

import "database/sql"

// RegisterBuiltins fills a registry with the engine's built-in tool
// catalogue and the alias names node scripts and models commonly use.
func RegisterBuiltins(r *Registry, db *sql.DB, tablePolicy map[string]string, store RuntimeDataStore, searcher Searcher) error {
	builtins := []*Tool{
		NewCalculatorTool(),
		NewDatabaseTool(db, tablePolicy),
		NewHTTPRequestTool(),
		NewSmartSearchTool(searcher),
		NewReadWorkflowDataTool(store),
		NewReadRuntimeDataTool(store),
		NewWriteRuntimeDataTool(store),
	}
	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return err
		}
	}

	r.Alias("calculate", "calculator")
	r.Alias("database", "database_query")
	r.Alias("google_search", "smart_search")
	r.Alias("web_search", "smart_search")
	r.Alias("search", "smart_search")
	r.Alias("http_search", "smart_search")

	return nil
}
