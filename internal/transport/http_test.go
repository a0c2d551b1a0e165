package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
)

func TestDispatch_HeadersAndQuery(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("page")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1}`)
	}))
	defer srv.Close()

	req := &domain.RequestState{
		Method: "GET",
		URL:    srv.URL + "/items/{id}",
		Headers: []domain.Header{
			{Key: "Authorization", Value: "Bearer abc123", Enabled: true},
			{Key: "X-Disabled", Value: "nope", Enabled: false},
		},
		Query:      []domain.Param{{Key: "page", Value: "2", Enabled: true}},
		PathParams: []domain.Param{{Key: "id", Value: "42", Enabled: true}},
		Body:       domain.Body{Kind: domain.BodyNone},
	}

	resp, err := NewHTTPTransport().Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotAuth != "Bearer abc123" {
		t.Errorf("auth header not sent: %q", gotAuth)
	}
	if gotQuery != "2" {
		t.Errorf("query param not sent: %q", gotQuery)
	}
	if gotPath != "/items/42" {
		t.Errorf("path param not applied: %q", gotPath)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status: %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"id":1}` || resp.ContentType != "application/json" {
		t.Errorf("response body/content-type wrong: %q %q", resp.Body, resp.ContentType)
	}
}

func TestDispatch_DisabledHeaderNotSent(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Disabled"]
	}))
	defer srv.Close()

	req := &domain.RequestState{
		Method:  "GET",
		URL:     srv.URL,
		Headers: []domain.Header{{Key: "X-Disabled", Value: "v", Enabled: false}},
		Body:    domain.Body{Kind: domain.BodyNone},
	}
	if _, err := NewHTTPTransport().Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if present {
		t.Error("disabled header reached the wire")
	}
}

func TestDispatch_MultipartBoundaryAssigned(t *testing.T) {
	var contentType, field string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			field = r.FormValue("name")
		}
	}))
	defer srv.Close()

	req := &domain.RequestState{
		Method: "POST",
		URL:    srv.URL,
		Body: domain.Body{
			Kind: domain.BodyMultipart,
			Form: []domain.Row{{Key: "name", Value: "voiden", Enabled: true}},
		},
	}
	if _, err := NewHTTPTransport().Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
		t.Errorf("transport must assign the multipart boundary, got %q", contentType)
	}
	if field != "voiden" {
		t.Errorf("form field lost: %q", field)
	}
}

func TestDispatch_URLEncodedBody(t *testing.T) {
	var gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	req := &domain.RequestState{
		Method:      "POST",
		URL:         srv.URL,
		ContentType: "application/x-www-form-urlencoded",
		Body: domain.Body{
			Kind: domain.BodyURLEncoded,
			Form: []domain.Row{{Key: "a", Value: "1", Enabled: true}, {Key: "b", Value: "two words", Enabled: true}},
		},
	}
	if _, err := NewHTTPTransport().Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotBody != "a=1&b=two+words" {
		t.Errorf("urlencoded body wrong: %q", gotBody)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("declared content type not applied: %q", gotContentType)
	}
}

func TestDispatch_CancellationAborts(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	req := &domain.RequestState{Method: "GET", URL: srv.URL, Body: domain.Body{Kind: domain.BodyNone}}
	if _, err := NewHTTPTransport().Dispatch(ctx, req); err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestGraphQLPayload(t *testing.T) {
	payload, err := graphQLPayload(&domain.GraphQLOperation{
		Query:     "query Items { items { id } }",
		Variables: `{"first":10}`,
	})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	want := `{"query":"query Items { items { id } }","variables":{"first":10}}`
	if payload != want {
		t.Errorf("expected %s, got %s", want, payload)
	}

	if _, err := graphQLPayload(&domain.GraphQLOperation{Query: "{ x }", Variables: "not-json"}); err == nil {
		t.Error("invalid variables JSON must be rejected")
	}
}

func TestBuildURL(t *testing.T) {
	req := &domain.RequestState{
		URL:        "https://api.example.com/users/:user/posts/{post}",
		PathParams: []domain.Param{{Key: "user", Value: "u1", Enabled: true}, {Key: "post", Value: "p2", Enabled: true}},
		Query:      []domain.Param{{Key: "expand", Value: "author", Enabled: true}},
	}
	got, err := BuildURL(req)
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if got != "https://api.example.com/users/u1/posts/p2?expand=author" {
		t.Errorf("unexpected url: %s", got)
	}
}
