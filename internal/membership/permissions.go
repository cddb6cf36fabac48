package membership

import (
	"encoding/json"
)

// CapabilitiesKey is the permissions entry listing explicitly granted capabilities.
const CapabilitiesKey = "capabilities"

// Permissions is the per-membership override map. Capabilities mirrors the
// "capabilities" list; Extra keeps every other key as stored.
type Permissions struct {
	Capabilities []string
	Extra        map[string]any
}

// PermissionsFromMap builds Permissions from an open map. A "capabilities"
// entry that is not a list becomes an empty list; non-string items are dropped.
func PermissionsFromMap(raw map[string]any) Permissions {
	p := Permissions{Capabilities: []string{}, Extra: map[string]any{}}
	for k, v := range raw {
		if k == CapabilitiesKey {
			p.Capabilities = capabilityList(v)
			continue
		}
		p.Extra[k] = v
	}
	return p
}

// DecodePermissions hydrates stored JSON. Malformed data yields an empty
// override set instead of an error.
func DecodePermissions(data []byte) Permissions {
	var raw map[string]any
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil {
		return PermissionsFromMap(nil)
	}
	return PermissionsFromMap(raw)
}

// Normalize guarantees a non-nil capability list and extra map.
func (p Permissions) Normalize() Permissions {
	out := Permissions{Capabilities: []string{}, Extra: map[string]any{}}
	out.Capabilities = append(out.Capabilities, p.Capabilities...)
	for k, v := range p.Extra {
		if k == CapabilitiesKey {
			continue
		}
		out.Extra[k] = v
	}
	return out
}

// Grants reports whether the overrides grant capability, either by a boolean
// true entry under the capability key or by listing it in "capabilities".
func (p Permissions) Grants(capability string) bool {
	if capability == "" {
		return false
	}
	if v, ok := p.Extra[capability].(bool); ok && v {
		return true
	}
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Map renders the overrides as the stored open map.
func (p Permissions) Map() map[string]any {
	n := p.Normalize()
	out := make(map[string]any, len(n.Extra)+1)
	for k, v := range n.Extra {
		out[k] = v
	}
	out[CapabilitiesKey] = n.Capabilities
	return out
}

// MarshalJSON implements json.Marshaler.
func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on well-formed
// JSON of the wrong shape.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	obj, _ := raw.(map[string]any)
	*p = PermissionsFromMap(obj)
	return nil
}

func capabilityList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
