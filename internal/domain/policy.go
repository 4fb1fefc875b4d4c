package domain

// PolicyEntry declares one backing endpoint that may be exposed as a tool.
// Identity is ToolName; uniqueness is enforced during the catalog build,
// not here, so a document may legally contain duplicates.
type PolicyEntry struct {
	ToolName      string `json:"toolName" yaml:"toolName"`
	RouteTemplate string `json:"routeTemplate" yaml:"routeTemplate"`
	HTTPMethod    string `json:"httpMethod" yaml:"httpMethod"`
	OperationID   string `json:"operationId" yaml:"operationId"`
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Description   string `json:"description" yaml:"description"`
}

// PolicyDocument is the declarative source a catalog is built from.
// A fetch always yields a fresh value; documents are never mutated in place.
type PolicyDocument struct {
	Entries       []PolicyEntry `json:"entries" yaml:"entries"`
	SourceVersion string        `json:"sourceVersion" yaml:"sourceVersion"`
	DenyByDefault bool          `json:"denyByDefault" yaml:"denyByDefault"`
}
