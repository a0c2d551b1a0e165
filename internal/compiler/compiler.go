// Package compiler turns a document tree into a canonical RequestState.
// Compilation is pure and synchronous: one walk over the block sequence,
// no I/O, and no partial mutation of shared state on failure.
package compiler

import (
	"net/url"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

// MetaBodyKind is the metadata key under which the compiler records the
// body variant for later stages.
const MetaBodyKind = "compiler.body_kind"

// impliedContentTypes maps body kinds to the content type the compiler
// stamps when no explicit Content-Type header is present. Multipart is
// deliberately absent: its boundary parameter is generated by the
// transport at dispatch, so stamping here would be wrong.
var impliedContentTypes = map[domain.BodyKind]string{
	domain.BodyJSON:       "application/json",
	domain.BodyXML:        "application/xml",
	domain.BodyYAML:       "application/yaml",
	domain.BodyURLEncoded: "application/x-www-form-urlencoded",
	domain.BodyGraphQL:    "application/json",
}

// Compiler walks document trees into RequestStates.
type Compiler struct{}

// New creates a Compiler.
func New() *Compiler { return &Compiler{} }

// Compile walks the document's block sequence once, dispatching on block
// kind. Unknown kinds are ignored for forward compatibility with
// extension-defined blocks that do not affect transport. Fails only with
// a MalformedDocumentError carrying the offending block's position.
func (c *Compiler) Compile(doc *domain.Document) (*domain.RequestState, error) {
	rs := &domain.RequestState{
		Method:   "GET",
		Body:     domain.Body{Kind: domain.BodyNone},
		Metadata: make(map[string]any),
	}
	var graphql domain.GraphQLOperation
	methodAuthored := false

	for _, b := range doc.Blocks {
		switch b.Kind {
		case domain.BlockMethod:
			m := strings.ToUpper(strings.TrimSpace(b.Text))
			if m == "" {
				return nil, &domain.MalformedDocumentError{Position: b.Position, Reason: "empty method block"}
			}
			if strings.ContainsAny(m, " \t\r\n") {
				return nil, &domain.MalformedDocumentError{Position: b.Position, Reason: "method must be a single token"}
			}
			rs.Method = m
			methodAuthored = true

		case domain.BlockURL:
			raw := strings.TrimSpace(b.Text)
			if raw == "" {
				return nil, &domain.MalformedDocumentError{Position: b.Position, Reason: "empty url block"}
			}
			rs.URL = raw

		case domain.BlockHeadersTable:
			for _, row := range enabledRows(b.Rows) {
				rs.Headers = append(rs.Headers, domain.Header{Key: row.Key, Value: row.Value, Enabled: true})
			}

		case domain.BlockQueryTable:
			for _, row := range enabledRows(b.Rows) {
				rs.Query = append(rs.Query, domain.Param{Key: row.Key, Value: row.Value, Enabled: true})
			}

		case domain.BlockPathTable:
			for _, row := range enabledRows(b.Rows) {
				rs.PathParams = append(rs.PathParams, domain.Param{Key: row.Key, Value: row.Value, Enabled: true})
			}

		case domain.BlockJSONBody:
			rs.Body = domain.Body{Kind: domain.BodyJSON, Text: b.Text}
		case domain.BlockXMLBody:
			rs.Body = domain.Body{Kind: domain.BodyXML, Text: b.Text}
		case domain.BlockYAMLBody:
			rs.Body = domain.Body{Kind: domain.BodyYAML, Text: b.Text}
		case domain.BlockURLTable:
			rs.Body = domain.Body{Kind: domain.BodyURLEncoded, Form: enabledRows(b.Rows)}
		case domain.BlockMultipartTable:
			rs.Body = domain.Body{Kind: domain.BodyMultipart, Form: enabledRows(b.Rows)}
		case domain.BlockBinaryFile:
			if strings.TrimSpace(b.FilePath) == "" {
				return nil, &domain.MalformedDocumentError{Position: b.Position, Reason: "binary-file block without a file path"}
			}
			rs.Body = domain.Body{Kind: domain.BodyRaw, FilePath: b.FilePath}

		case domain.BlockGraphQLQuery:
			if _, err := parser.ParseQuery(&ast.Source{Name: "document", Input: b.Text}); err != nil {
				return nil, &domain.MalformedDocumentError{Position: b.Position, Reason: "invalid graphql operation: " + err.Error()}
			}
			graphql.Query = b.Text
		case domain.BlockGraphQLVariables:
			graphql.Variables = b.Text

		default:
			// Unknown block kinds do not affect transport.
		}
	}

	if graphql.Query != "" {
		op := graphql
		rs.Body = domain.Body{Kind: domain.BodyGraphQL, GraphQL: &op}
		// GraphQL operations travel as POSTed JSON envelopes unless the
		// author said otherwise.
		if !methodAuthored {
			rs.Method = "POST"
		}
	}

	if rs.URL == "" {
		return nil, &domain.MalformedDocumentError{Position: 0, Reason: "document has no url block"}
	}
	if err := validateURL(rs.URL); err != nil {
		return nil, err
	}

	rs.Protocol = protocolFor(doc, rs)
	rs.Metadata[MetaBodyKind] = string(rs.Body.Kind)

	// Content-Type inference: stamp the implied value only when the body
	// kind has one and the author did not already declare a Content-Type
	// (case-insensitive check).
	if implied, ok := impliedContentTypes[rs.Body.Kind]; ok && !rs.HasHeader("Content-Type") {
		rs.ContentType = implied
		rs.Headers = append(rs.Headers, domain.Header{Key: "Content-Type", Value: implied, Enabled: true})
	} else if ct, ok := rs.HeaderValue("Content-Type"); ok {
		rs.ContentType = ct
	}

	return rs, nil
}

// validateURL accepts templated URLs: {{...}} spans may stand in for any
// component, so only the parts outside templates are checked.
func validateURL(raw string) error {
	if strings.Contains(raw, "{{") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &domain.MalformedDocumentError{Position: 0, Reason: "invalid url: " + err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return &domain.MalformedDocumentError{Position: 0, Reason: "url must be absolute"}
	}
	return nil
}

func protocolFor(doc *domain.Document, rs *domain.RequestState) string {
	if doc.Protocol != "" {
		return doc.Protocol
	}
	if rs.Body.Kind == domain.BodyGraphQL {
		return ports.ProtocolGraphQL
	}
	return ports.ProtocolHTTP
}

func enabledRows(rows []domain.Row) []domain.Row {
	var out []domain.Row
	for _, r := range rows {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}
