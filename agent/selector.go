package agent

import "github.com/captaincrouton89/klaude-wrapper/db"

// Selection is the outcome of RuntimeSelector.Select: a primary backend
// kind and an optional fallback.
type Selection struct {
	Primary  string
	Fallback string
}

// Select maps a Definition's declared kind to a concrete backend kind,
// defaulting to Native with no fallback when the definition doesn't name
// one. An explicit FallbackKind on the definition is honored verbatim.
func Select(def *Definition) Selection {
	primary := normalizeKind(def.Kind)
	fallback := ""
	if def.FallbackKind != "" {
		fallback = normalizeKind(def.FallbackKind)
	}
	return Selection{Primary: primary, Fallback: fallback}
}

func normalizeKind(kind string) string {
	switch kind {
	case db.RuntimeKindNative, db.RuntimeKindBackendA, db.RuntimeKindBackendB, db.RuntimeKindBackendC:
		return kind
	default:
		return db.RuntimeKindNative
	}
}
