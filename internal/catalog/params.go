package catalog

import "strings"

// Table parameter marking data the catalog must not delete on drop.
const (
	ExternalKey   = "EXTERNAL"
	ExternalValue = "TRUE"
)

// LookupFold returns the value of the first key equal to key under Unicode
// case folding. Parameter keys are case-sensitive on the wire, so callers use
// this only where the metastore itself ignores case.
func LookupFold(params map[string]string, key string) (string, bool) {
	if v, ok := params[key]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// IsExternal reports whether params carry EXTERNAL=TRUE, ignoring case on
// both key and value.
func IsExternal(params map[string]string) bool {
	v, ok := LookupFold(params, ExternalKey)
	return ok && strings.EqualFold(v, ExternalValue)
}

// DropParameters returns the parameter set a table must carry right before it
// is dropped: only the external marker survives.
func DropParameters(params map[string]string) map[string]string {
	if IsExternal(params) {
		return map[string]string{ExternalKey: ExternalValue}
	}
	return map[string]string{}
}
