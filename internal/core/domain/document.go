// Package domain defines the document tree exchanged with the editing
// surface and the canonical request/response descriptors that flow through
// the pipeline. Everything here is protocol-agnostic and free of I/O.
package domain

// BlockKind identifies a document block type. The set is closed: the
// compiler matches exhaustively and ignores kinds it does not know, which
// is how extension-defined blocks that do not affect transport stay
// forward-compatible.
type BlockKind string

const (
	BlockMethod           BlockKind = "method"
	BlockURL              BlockKind = "url"
	BlockHeadersTable     BlockKind = "headers-table"
	BlockQueryTable       BlockKind = "query-table"
	BlockPathTable        BlockKind = "path-table"
	BlockJSONBody         BlockKind = "json-body"
	BlockXMLBody          BlockKind = "xml-body"
	BlockYAMLBody         BlockKind = "yaml-body"
	BlockURLTable         BlockKind = "url-table"
	BlockMultipartTable   BlockKind = "multipart-table"
	BlockGraphQLQuery     BlockKind = "graphql-query"
	BlockGraphQLVariables BlockKind = "graphql-variables"
	BlockBinaryFile       BlockKind = "binary-file"
)

// Response document block kinds, produced by the post-processor. The
// editing surface renders blocks in document order, so the emit order of
// these kinds is a contract.
const (
	BlockResponseBody    BlockKind = "response-body"
	BlockResponseMeta    BlockKind = "response-meta"
	BlockResponseHeaders BlockKind = "response-headers"
	BlockRequestTrace    BlockKind = "request-trace"
	BlockErrorReport     BlockKind = "error-report"
)

// Row is one entry of a key/value table block. Disabled rows are compiled
// out and never reach the wire.
type Row struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Block is one node of the document tree. Which fields are meaningful
// depends on Kind: scalar blocks carry Text, table blocks carry Rows,
// binary-file carries FilePath, metadata blocks carry Data.
type Block struct {
	Kind     BlockKind      `json:"kind"`
	Position int            `json:"position"`
	Text     string         `json:"text,omitempty"`
	Rows     []Row          `json:"rows,omitempty"`
	FilePath string         `json:"file_path,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Document is the serialized tree the editing surface hands to the
// pipeline, and the shape the pipeline hands back as a rendered response.
type Document struct {
	// Protocol overrides protocol inference. Empty means infer: graphql
	// when a graphql-query block is present, http otherwise. Socket
	// documents must set it explicitly since no block kind implies it.
	Protocol string  `json:"protocol,omitempty"`
	Blocks   []Block `json:"blocks"`
}

// IsBody reports whether k is one of the body block kinds.
func (k BlockKind) IsBody() bool {
	switch k {
	case BlockJSONBody, BlockXMLBody, BlockYAMLBody, BlockURLTable,
		BlockMultipartTable, BlockGraphQLQuery, BlockGraphQLVariables, BlockBinaryFile:
		return true
	}
	return false
}
