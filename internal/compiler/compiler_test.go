package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
)

func docWith(blocks ...domain.Block) *domain.Document {
	return &domain.Document{Blocks: blocks}
}

func urlBlock(u string) domain.Block {
	return domain.Block{Kind: domain.BlockURL, Text: u}
}

func countContentType(rs *domain.RequestState) int {
	n := 0
	for _, h := range rs.Headers {
		if strings.EqualFold(h.Key, "Content-Type") {
			n++
		}
	}
	return n
}

func TestCompile_JSONBodyStampsContentType(t *testing.T) {
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com/items"),
		domain.Block{Kind: domain.BlockMethod, Text: "post"},
		domain.Block{Kind: domain.BlockJSONBody, Text: `{"a":1}`},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rs.Method != "POST" {
		t.Errorf("method not normalized: %q", rs.Method)
	}
	if n := countContentType(rs); n != 1 {
		t.Fatalf("expected exactly one Content-Type header, got %d", n)
	}
	if v, _ := rs.HeaderValue("content-type"); v != "application/json" {
		t.Errorf("expected application/json, got %q", v)
	}
}

func TestCompile_ExplicitContentTypeWins(t *testing.T) {
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com"),
		domain.Block{Kind: domain.BlockHeadersTable, Rows: []domain.Row{
			{Key: "CONTENT-TYPE", Value: "application/vnd.api+json", Enabled: true},
		}},
		domain.Block{Kind: domain.BlockJSONBody, Text: `{}`},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if n := countContentType(rs); n != 1 {
		t.Fatalf("expected one Content-Type header, got %d", n)
	}
	if v, _ := rs.HeaderValue("Content-Type"); v != "application/vnd.api+json" {
		t.Errorf("explicit header must win, got %q", v)
	}
}

func TestCompile_MultipartNeverStamped(t *testing.T) {
	// The boundary parameter is generated by the transport at dispatch,
	// so the compiled request must carry no Content-Type at all.
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com/upload"),
		domain.Block{Kind: domain.BlockMultipartTable, Rows: []domain.Row{
			{Key: "field", Value: "value", Enabled: true},
		}},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rs.HasHeader("Content-Type") {
		t.Error("multipart body must not be stamped with a Content-Type")
	}
	if rs.Body.Kind != domain.BodyMultipart {
		t.Errorf("expected multipart body, got %q", rs.Body.Kind)
	}
}

func TestCompile_DisabledRowsCompiledOut(t *testing.T) {
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com"),
		domain.Block{Kind: domain.BlockHeadersTable, Rows: []domain.Row{
			{Key: "X-On", Value: "1", Enabled: true},
			{Key: "X-Off", Value: "2", Enabled: false},
		}},
		domain.Block{Kind: domain.BlockQueryTable, Rows: []domain.Row{
			{Key: "q", Value: "x", Enabled: false},
		}},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(rs.Headers) != 1 || rs.Headers[0].Key != "X-On" {
		t.Errorf("disabled header row survived: %+v", rs.Headers)
	}
	if len(rs.Query) != 0 {
		t.Errorf("disabled query row survived: %+v", rs.Query)
	}
}

func TestCompile_UnknownBlockIgnored(t *testing.T) {
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com"),
		domain.Block{Kind: domain.BlockKind("vendor-notes"), Text: "not transport-relevant"},
	))
	if err != nil {
		t.Fatalf("unknown block must be ignored: %v", err)
	}
	if rs.Body.Kind != domain.BodyNone {
		t.Errorf("unknown block mutated the body: %q", rs.Body.Kind)
	}
}

func TestCompile_MissingURL(t *testing.T) {
	_, err := New().Compile(docWith(domain.Block{Kind: domain.BlockMethod, Text: "GET"}))
	if !domain.IsMalformedDocument(err) {
		t.Fatalf("expected MalformedDocumentError, got %v", err)
	}
}

func TestCompile_MalformedCarriesPosition(t *testing.T) {
	_, err := New().Compile(docWith(
		urlBlock("https://api.example.com"),
		domain.Block{Kind: domain.BlockMethod, Position: 7, Text: ""},
	))
	var merr *domain.MalformedDocumentError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedDocumentError, got %v", err)
	}
	if merr.Position != 7 {
		t.Errorf("expected position 7, got %d", merr.Position)
	}
}

func TestCompile_GraphQL(t *testing.T) {
	rs, err := New().Compile(docWith(
		urlBlock("https://api.example.com/graphql"),
		domain.Block{Kind: domain.BlockGraphQLQuery, Text: `query Items { items { id } }`},
		domain.Block{Kind: domain.BlockGraphQLVariables, Text: `{"first": 10}`},
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rs.Protocol != "graphql" {
		t.Errorf("expected graphql protocol inference, got %q", rs.Protocol)
	}
	if rs.Method != "POST" {
		t.Errorf("graphql defaults to POST, got %q", rs.Method)
	}
	if rs.Body.Kind != domain.BodyGraphQL || rs.Body.GraphQL.Variables != `{"first": 10}` {
		t.Errorf("graphql body not assembled: %+v", rs.Body)
	}
}

func TestCompile_GraphQLSyntaxError(t *testing.T) {
	_, err := New().Compile(docWith(
		urlBlock("https://api.example.com/graphql"),
		domain.Block{Kind: domain.BlockGraphQLQuery, Position: 3, Text: `query {`},
	))
	if !domain.IsMalformedDocument(err) {
		t.Fatalf("expected MalformedDocumentError for invalid graphql, got %v", err)
	}
}

func TestCompile_TemplatedURLAccepted(t *testing.T) {
	rs, err := New().Compile(docWith(urlBlock("{{BASE_URL}}/items")))
	if err != nil {
		t.Fatalf("templated url must pass compilation: %v", err)
	}
	if rs.URL != "{{BASE_URL}}/items" {
		t.Errorf("url altered: %q", rs.URL)
	}
}
