package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

// GraphQLTransport posts the standard GraphQL JSON envelope over the HTTP
// capability. Compiled graphql documents arrive with a BodyGraphQL variant
// and an application/json content type already stamped.
type GraphQLTransport struct {
	http *HTTPTransport
}

// NewGraphQLTransport wraps an HTTP capability.
func NewGraphQLTransport(http *HTTPTransport) *GraphQLTransport {
	return &GraphQLTransport{http: http}
}

func (t *GraphQLTransport) Name() string { return ports.ProtocolGraphQL }

func (t *GraphQLTransport) Dispatch(ctx context.Context, req *domain.RequestState) (*domain.ResponseState, error) {
	if req.Body.Kind != domain.BodyGraphQL || req.Body.GraphQL == nil {
		return nil, fmt.Errorf("graphql transport requires a graphql body, got %q", req.Body.Kind)
	}
	return t.http.Dispatch(ctx, req)
}

// graphQLPayload builds the {"query": ..., "variables": ...} envelope.
func graphQLPayload(op *domain.GraphQLOperation) (string, error) {
	envelope := struct {
		Query     string          `json:"query"`
		Variables json.RawMessage `json:"variables,omitempty"`
	}{Query: op.Query}

	if op.Variables != "" {
		if !json.Valid([]byte(op.Variables)) {
			return "", fmt.Errorf("graphql variables are not valid JSON")
		}
		envelope.Variables = json.RawMessage(op.Variables)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode graphql payload: %w", err)
	}
	return string(data), nil
}

var _ ports.Transport = (*GraphQLTransport)(nil)
