package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// decode fills out from p with weak typing so numbers sent as strings,
// and the reverse, still land in typed fields. On error out keeps every
// field that did decode.
func decode(p map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(p)
}

func has(p map[string]any, key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func first(p map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := p[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(p map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := scalarString(p[key]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// stringList accepts a string, a list of scalars, or a list of objects
// naming something, and returns the non-empty strings.
func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			var s string
			if obj, ok := item.(map[string]any); ok {
				s = firstString(obj, "name", "agent", "agent_name", "title")
			} else {
				s = scalarString(item)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := scalarString(t); s != "" {
			return []string{s}
		}
		return []string{fmt.Sprint(t)}
	}
}

// requirementList splits a bulleted or newline separated string into
// items; arrays go through stringList.
func requirementList(v any) []string {
	s, ok := v.(string)
	if !ok {
		if out := stringList(v); out != nil {
			return out
		}
		return []string{}
	}
	out := []string{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func normalizeVendor(v map[string]any) Vendor {
	return Vendor{
		Name:             firstString(v, "name", "vendor_name", "company_name", "company"),
		Website:          firstString(v, "website", "website_url", "url", "homepage"),
		Description:      firstString(v, "description", "summary", "about", "overview"),
		Services:         stringList(first(v, "services", "service_offerings", "offerings", "products")),
		PricingModel:     firstString(v, "pricing_model", "pricing", "pricing_structure"),
		Certifications:   stringList(first(v, "certifications", "certificates", "certs")),
		Headquarters:     firstString(v, "headquarters", "hq", "headquarter_location", "location"),
		SourceURLs:       stringList(first(v, "source_urls", "sources", "source_url", "references")),
		ComplianceScore:  number(first(v, "compliance_score", "score")),
		ComplianceRating: firstString(v, "compliance_rating", "rating"),
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
