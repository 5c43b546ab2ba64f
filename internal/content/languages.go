package content

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguages validates a metadata language list against BCP 47 /
// ISO 639 codes and returns the lowercased canonical list. Duplicates and
// unparseable codes are rejected.
func NormalizeLanguages(raw []any) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("languages must contain at least one language code")
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		code, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("language code must be a string, got %T", v)
		}
		code = strings.ToLower(strings.TrimSpace(code))
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("invalid language code %q", code)
		}
		base, conf := tag.Base()
		if conf == language.No {
			return nil, fmt.Errorf("invalid language code %q", code)
		}
		normalized := base.String()
		if _, dup := seen[normalized]; dup {
			return nil, fmt.Errorf("duplicate language code %q", normalized)
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}
