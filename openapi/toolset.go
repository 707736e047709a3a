package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	swarm "github.com/feiskyer/swarm-tools"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// methods lists the HTTP methods turned into tools, in tool order.
var methods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

const (
	maxToolNameLength = 64
	maxResponseText   = 8 << 10
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Credential is an apiKey value applied to every request. The location is
// taken from the security scheme named Scheme in components.securitySchemes.
type Credential struct {
	Scheme string
	Value  string
}

// ToolsetOptions configures NewToolset.
type ToolsetOptions struct {
	HTTPClient *http.Client
	Credential *Credential
	Logger     *zap.Logger
	Metrics    *Metrics

	// Limiter, when set, is shared by all tools and bounds the request rate.
	Limiter *rate.Limiter
}

// Toolset holds the agent functions generated from an OpenAPI document.
type Toolset struct {
	tools []*OperationTool
}

// apiKeyLocation is where an apiKey credential is sent.
type apiKeyLocation struct {
	in   string
	name string
}

// OperationTool is an agent function that performs one API operation.
type OperationTool struct {
	name        string
	description string
	method      string
	path        string
	serverURL   string
	params      []parameter
	hasBody     bool
	schema      map[string]interface{}

	client  *http.Client
	apiKey  *apiKeyLocation
	secret  string
	logger  *zap.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

type parameter struct {
	name string
	// key is the argument name in the tool schema.
	key      string
	in       string
	required bool
}

// NewToolset builds one tool per operation in doc. The first server URL is
// used for all requests.
func NewToolset(doc Document, opts ToolsetOptions) (*Toolset, error) {
	servers := doc.Servers()
	if len(servers) == 0 {
		return nil, fmt.Errorf("document has no servers")
	}
	serverURL := strings.TrimRight(servers[0], "/")
	if u, err := url.Parse(serverURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server URL %q is not absolute", serverURL)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "openapi_toolset"))

	var apiKey *apiKeyLocation
	var secret string
	if opts.Credential != nil && opts.Credential.Value != "" {
		apiKey = lookupAPIKey(doc, opts.Credential.Scheme)
		if apiKey == nil {
			logger.Warn("credential scheme is not an apiKey scheme, requests are sent without it",
				zap.String("scheme", opts.Credential.Scheme))
		}
		secret = opts.Credential.Value
	}

	paths, _ := doc["paths"].(map[string]any)
	pathNames := make([]string, 0, len(paths))
	for p := range paths {
		pathNames = append(pathNames, p)
	}
	sort.Strings(pathNames)

	ts := &Toolset{}
	taken := make(map[string]bool)
	for _, path := range pathNames {
		item, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}
		shared := decodeParameters(doc, item["parameters"])
		for _, method := range methods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			tool := newOperationTool(doc, path, method, op, shared)
			tool.serverURL = serverURL
			tool.client = client
			tool.apiKey = apiKey
			tool.secret = secret
			tool.logger = logger
			tool.metrics = opts.Metrics
			tool.limiter = opts.Limiter

			tool.name = uniqueName(tool.name, taken)
			taken[tool.name] = true
			ts.tools = append(ts.tools, tool)
		}
	}

	logger.Info("generated tools", zap.Int("count", len(ts.tools)), zap.String("server", serverURL))
	return ts, nil
}

// Len returns the number of tools.
func (t *Toolset) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tools)
}

// Functions returns the tools as agent functions.
func (t *Toolset) Functions() []swarm.AgentFunction {
	if t == nil {
		return nil
	}
	fns := make([]swarm.AgentFunction, len(t.tools))
	for i, tool := range t.tools {
		fns[i] = tool
	}
	return fns
}

// Tool returns the tool with the given name.
func (t *Toolset) Tool(name string) (*OperationTool, bool) {
	if t == nil {
		return nil, false
	}
	for _, tool := range t.tools {
		if tool.name == name {
			return tool, true
		}
	}
	return nil, false
}

func newOperationTool(doc Document, path, method string, op map[string]any, shared []paramSpec) *OperationTool {
	name, _ := op["operationId"].(string)
	if name == "" {
		name = method + path
	}
	name = truncate(strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_"), maxToolNameLength)

	description, _ := op["summary"].(string)
	if description == "" {
		description, _ = op["description"].(string)
	}
	if description == "" {
		description = strings.ToUpper(method) + " " + path
	}

	// Operation parameters override path-level ones with the same name and location.
	specs := make([]paramSpec, 0, len(shared))
	own := decodeParameters(doc, op["parameters"])
	overridden := make(map[string]bool, len(own))
	for _, p := range own {
		overridden[p.in+":"+p.name] = true
	}
	for _, p := range shared {
		if !overridden[p.in+":"+p.name] {
			specs = append(specs, p)
		}
	}
	specs = append(specs, own...)

	var params []paramSpec
	for _, p := range specs {
		if p.in == "path" || p.in == "query" || p.in == "header" {
			params = append(params, p)
		}
	}
	body, bodyRequired := jsonBodySchema(doc, op["requestBody"])

	// Names used by more than one argument are prefixed with their location.
	uses := make(map[string]int, len(params)+1)
	for _, p := range params {
		uses[p.name]++
	}
	if body != nil {
		uses["body"]++
	}

	properties := make(map[string]interface{})
	required := make([]string, 0)
	tool := &OperationTool{
		name:        name,
		description: description,
		method:      strings.ToUpper(method),
		path:        path,
	}
	for _, p := range params {
		key := p.name
		if uses[p.name] > 1 {
			key = p.in + "_" + p.name
		}
		prop := copySchema(p.schema)
		if p.description != "" {
			prop["description"] = p.description
		}
		properties[key] = prop
		isRequired := p.required || p.in == "path"
		if isRequired {
			required = append(required, key)
		}
		tool.params = append(tool.params, parameter{name: p.name, key: key, in: p.in, required: isRequired})
	}

	if body != nil {
		properties["body"] = body
		tool.hasBody = true
		if bodyRequired {
			required = append(required, "body")
		}
	}

	tool.schema = map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	return tool
}

// Name implements swarm.AgentFunction.
func (o *OperationTool) Name() string { return o.name }

// Description implements swarm.AgentFunction.
func (o *OperationTool) Description() string { return o.description }

// Parameters implements swarm.AgentFunction. Arguments are described by Schema.
func (o *OperationTool) Parameters() []swarm.Parameter { return nil }

// Schema implements swarm.SchemaProvider.
func (o *OperationTool) Schema() map[string]interface{} { return o.schema }

// Method returns the upper-case HTTP method.
func (o *OperationTool) Method() string { return o.method }

// Path returns the templated operation path.
func (o *OperationTool) Path() string { return o.path }

// Call performs the HTTP request. Non-2xx responses are returned as results,
// not errors, so the model can see them.
func (o *OperationTool) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := o.buildRequest(ctx, args)
	if err != nil {
		return nil, err
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		o.metrics.observe(o.name, "error")
		return nil, fmt.Errorf("%s %s: %w", o.method, o.path, err)
	}
	defer resp.Body.Close()
	o.metrics.observe(o.name, strconv.Itoa(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseText+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	o.logger.Debug("operation call",
		zap.String("tool", o.name),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        decodeBody(data),
	}, nil
}

func (o *OperationTool) buildRequest(ctx context.Context, args map[string]interface{}) (*http.Request, error) {
	path := o.path
	query := url.Values{}
	header := http.Header{}

	for _, p := range o.params {
		v, ok := args[p.key]
		if !ok || v == nil {
			if p.required {
				return nil, fmt.Errorf("missing required parameter %q", p.key)
			}
			continue
		}
		switch p.in {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.name+"}", url.PathEscape(formatValue(v)))
		case "query":
			if list, ok := v.([]interface{}); ok {
				for _, item := range list {
					query.Add(p.name, formatValue(item))
				}
				continue
			}
			query.Set(p.name, formatValue(v))
		case "header":
			header.Set(p.name, formatValue(v))
		}
	}

	var body io.Reader
	if o.hasBody {
		if v, ok := args["body"]; ok && v != nil {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding body: %w", err)
			}
			body = bytes.NewReader(data)
			header.Set("Content-Type", "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, o.method, o.serverURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	if o.apiKey != nil {
		switch o.apiKey.in {
		case "header":
			req.Header.Set(o.apiKey.name, o.secret)
		case "query":
			q := url.Values{}
			for k, vs := range query {
				q[k] = vs
			}
			q.Set(o.apiKey.name, o.secret)
			query = q
		case "cookie":
			req.AddCookie(&http.Cookie{Name: o.apiKey.name, Value: o.secret})
		}
	}
	req.URL.RawQuery = query.Encode()
	return req, nil
}

type paramSpec struct {
	name        string
	in          string
	description string
	required    bool
	schema      map[string]any
}

func decodeParameters(doc Document, raw any) []paramSpec {
	list, _ := raw.([]any)
	specs := make([]paramSpec, 0, len(list))
	for _, entry := range list {
		p, ok := resolveRef(doc, entry).(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		if name == "" || in == "" {
			continue
		}
		spec := paramSpec{name: name, in: in}
		spec.description, _ = p["description"].(string)
		spec.required, _ = p["required"].(bool)
		spec.schema, _ = resolveRef(doc, p["schema"]).(map[string]any)
		specs = append(specs, spec)
	}
	return specs
}

func jsonBodySchema(doc Document, raw any) (map[string]interface{}, bool) {
	body, ok := resolveRef(doc, raw).(map[string]any)
	if !ok {
		return nil, false
	}
	content, _ := body["content"].(map[string]any)
	media, ok := content["application/json"].(map[string]any)
	if !ok {
		return nil, false
	}
	resolved, ok := resolveRef(doc, media["schema"]).(map[string]any)
	if !ok {
		resolved = map[string]any{"type": "object"}
	}
	schema := copySchema(resolved)
	if desc, ok := body["description"].(string); ok && desc != "" {
		schema["description"] = desc
	}
	required, _ := body["required"].(bool)
	return schema, required
}

// resolveRef follows a local "#/..." reference once, including nested refs in
// the result's properties and items up to a small depth.
func resolveRef(doc Document, v any) any {
	return resolve(doc, v, 0)
}

const maxRefDepth = 4

func resolve(doc Document, v any, depth int) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if ref, ok := m["$ref"].(string); ok {
		if depth >= maxRefDepth {
			return map[string]any{"type": "object"}
		}
		target := lookupPointer(doc, ref)
		if target == nil {
			return map[string]any{"type": "object"}
		}
		return resolve(doc, target, depth+1)
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		switch k {
		case "properties":
			props, ok := val.(map[string]any)
			if !ok {
				out[k] = val
				continue
			}
			resolved := make(map[string]any, len(props))
			for name, prop := range props {
				resolved[name] = resolve(doc, prop, depth+1)
			}
			out[k] = resolved
		case "items":
			out[k] = resolve(doc, val, depth+1)
		default:
			out[k] = val
		}
	}
	return out
}

func lookupPointer(doc Document, ref string) any {
	if !strings.HasPrefix(ref, "#/") {
		return nil
	}
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func lookupAPIKey(doc Document, scheme string) *apiKeyLocation {
	components, _ := doc["components"].(map[string]any)
	schemes, _ := components["securitySchemes"].(map[string]any)
	s, ok := resolveRef(doc, schemes[scheme]).(map[string]any)
	if !ok || s["type"] != "apiKey" {
		return nil
	}
	in, _ := s["in"].(string)
	name, _ := s["name"].(string)
	if name == "" {
		return nil
	}
	return &apiKeyLocation{in: in, name: name}
}

func copySchema(schema map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		switch k {
		case "xml", "example", "examples":
			continue
		}
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "string"
	}
	return out
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func decodeBody(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	var v interface{}
	if len(data) <= maxResponseText && json.Unmarshal(data, &v) == nil {
		return v
	}
	if len(data) > maxResponseText {
		return truncate(string(data), maxResponseText) + "...(truncated)"
	}
	return string(data)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// uniqueName returns name, or name with the first free numeric suffix when
// name is already taken.
func uniqueName(name string, taken map[string]bool) string {
	candidate := name
	for k := 2; taken[candidate]; k++ {
		suffix := fmt.Sprintf("_%d", k)
		candidate = truncate(name, maxToolNameLength-len(suffix)) + suffix
	}
	return candidate
}
