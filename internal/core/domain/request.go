package domain

import "strings"

// Header is one request header row. Disabled rows are dropped at
// compilation; hooks that want a header off the wire remove it or add it
// with Enabled false.
type Header struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Param is one query or path parameter.
type Param struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// BodyKind tags the request body variant.
type BodyKind string

const (
	BodyNone       BodyKind = "none"
	BodyJSON       BodyKind = "json"
	BodyXML        BodyKind = "xml"
	BodyYAML       BodyKind = "yaml"
	BodyURLEncoded BodyKind = "urlencoded"
	BodyMultipart  BodyKind = "multipart"
	BodyRaw        BodyKind = "raw"
	BodyGraphQL    BodyKind = "graphql"
)

// GraphQLOperation holds an authored GraphQL request. Variables is the raw
// JSON text of the variables block, empty when none was authored.
type GraphQLOperation struct {
	Query     string `json:"query"`
	Variables string `json:"variables,omitempty"`
}

// Body is the tagged body variant of a RequestState. Text carries
// json/xml/yaml payloads, Form carries urlencoded and multipart rows,
// FilePath points at a raw-binary payload (read by the transport, the
// compiler performs no I/O), GraphQL carries a graphql operation.
type Body struct {
	Kind     BodyKind          `json:"kind"`
	Text     string            `json:"text,omitempty"`
	Form     []Row             `json:"form,omitempty"`
	FilePath string            `json:"file_path,omitempty"`
	GraphQL  *GraphQLOperation `json:"graphql,omitempty"`
}

// RequestState is the canonical, protocol-agnostic descriptor of an
// outgoing request. It is mutable during compilation and the pre-dispatch
// stages, and sealed (immutable) once the coordinator dispatches it.
type RequestState struct {
	Protocol   string         `json:"protocol"`
	Method     string         `json:"method"`
	URL        string         `json:"url"`
	Headers    []Header       `json:"headers"`
	Query      []Param        `json:"query,omitempty"`
	PathParams []Param        `json:"path_params,omitempty"`
	Body       Body           `json:"body"`
	// ContentType is the declared content type; the Content-Type header,
	// when present, is authoritative. At most one is sent per dispatch.
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	sealed bool
}

// HasHeader reports whether a header with the given key is present,
// compared case-insensitively. Disabled rows count as present.
func (r *RequestState) HasHeader(key string) bool {
	_, ok := r.HeaderValue(key)
	return ok
}

// HeaderValue returns the value of the first header matching key
// case-insensitively.
func (r *RequestState) HeaderValue(key string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces the first case-insensitive match for key, or appends
// an enabled header when none exists.
func (r *RequestState) SetHeader(key, value string) error {
	if r.sealed {
		return ErrSealed
	}
	for i := range r.Headers {
		if strings.EqualFold(r.Headers[i].Key, key) {
			r.Headers[i].Value = value
			r.Headers[i].Enabled = true
			return nil
		}
	}
	r.Headers = append(r.Headers, Header{Key: key, Value: value, Enabled: true})
	return nil
}

// AddQuery appends an enabled query parameter.
func (r *RequestState) AddQuery(key, value string) error {
	if r.sealed {
		return ErrSealed
	}
	r.Query = append(r.Query, Param{Key: key, Value: value, Enabled: true})
	return nil
}

// Seal marks the request immutable. Called by the coordinator immediately
// before dispatch; setters fail with ErrSealed afterwards.
func (r *RequestState) Seal() { r.sealed = true }

// Sealed reports whether the request has been dispatched.
func (r *RequestState) Sealed() bool { return r.sealed }

// Clone returns a deep copy of the request, used for the post-dispatch
// trace snapshot handed to post-processing hooks.
func (r *RequestState) Clone() *RequestState {
	c := *r
	c.sealed = false
	c.Headers = append([]Header(nil), r.Headers...)
	c.Query = append([]Param(nil), r.Query...)
	c.PathParams = append([]Param(nil), r.PathParams...)
	c.Body.Form = append([]Row(nil), r.Body.Form...)
	if r.Body.GraphQL != nil {
		op := *r.Body.GraphQL
		c.Body.GraphQL = &op
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
