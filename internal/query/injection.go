package query

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionHit is a bound string literal that libinjection flags as SQL.
// Literals are always bound as parameters, so a hit is reported, not fatal.
type InjectionHit struct {
	Index       int    `json:"index"`
	Fingerprint string `json:"fingerprint"`
	Value       string `json:"value"`
}

func (h InjectionHit) String() string {
	return fmt.Sprintf("parameter %d looks like SQL injection (fingerprint %s)", h.Index, h.Fingerprint)
}

// AuditParams checks every string parameter. Non-strings cannot carry SQL.
func AuditParams(params []any) []InjectionHit {
	var hits []InjectionHit
	for i, p := range params {
		s, ok := p.(string)
		if !ok {
			continue
		}
		if isSQLi, fp := libinjection.IsSQLi(s); isSQLi {
			hits = append(hits, InjectionHit{Index: i, Fingerprint: string(fp), Value: s})
		}
	}
	return hits
}
