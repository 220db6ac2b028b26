// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import "regexp"

// unsupportedPatterns match engine messages meaning "this runtime cannot run
// this model type". Engines report this as free text, not a typed error.
var unsupportedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unsupported model type`),
	regexp.MustCompile(`(?i)split is not a function`),
	regexp.MustCompile(`(?i)unknown model architecture`),
	regexp.MustCompile(`(?i)unsupported model architecture`),
	regexp.MustCompile(`(?i)requires a newer version of ollama`),
	regexp.MustCompile(`(?i)not supported by your version of ollama`),
}

// IsUnsupportedModel reports whether a load error says the model type is
// unsupported, which is the only failure that offers the fallback model.
// Anything it does not recognise takes the ordinary failure path.
func IsUnsupportedModel(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, re := range unsupportedPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
