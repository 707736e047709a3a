// Package openapi turns an OpenAPI 3.x document into agent tools.
//
// A document is fetched once, normalized and then handed to NewToolset.
// Normalization makes path-relative server URLs absolute and reduces the
// security requirements of selected operations to the one scheme the caller
// holds a credential for:
//
//	n := &openapi.Normalizer{
//		BaseURL:       "https://petstore3.swagger.io",
//		Targets:       []openapi.Target{{Path: "/pet/{petId}", Method: "get"}},
//		AllowedScheme: "api_key",
//	}
//	doc, report := n.Normalize(raw)
//
// A requirement list that loses every entry is removed from the operation
// rather than left empty, so the operation falls back to the document-level
// security instead of declaring that no security applies.
package openapi
