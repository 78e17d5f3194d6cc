// Package plugins holds the built-in plugin detectors. They run after L1
// under the same contract: bounded work, detections carry offsets only.
package plugins

import (
	"context"
	"regexp"
	"strings"

	"github.com/sentra-ai/sentra/internal/detection"
)

// sensitivePathRe flags references to credential and key material on disk.
// Reading these files is almost always a precursor to exfiltration.
var sensitivePathRe = regexp.MustCompile(`(/\.ssh/id_(?:rsa|dsa|ecdsa|ed25519)|/\.ssh/authorized_keys|/\.aws/credentials|/\.aws/config|/\.kube/config|/\.docker/config\.json|application_default_credentials\.json|\.env\b|\.npmrc\b|\.netrc\b|\.git-credentials\b|/etc/shadow\b|/etc/ssh/)`)

// CredentialPaths detects mentions of credential files and key material.
type CredentialPaths struct{}

func (CredentialPaths) Name() string { return "credential_paths" }

func (CredentialPaths) Detect(ctx context.Context, text string) ([]detection.Detection, error) {
	loc := sensitivePathRe.FindStringIndex(text)
	if loc == nil {
		return nil, nil
	}
	return []detection.Detection{{
		RuleID:     "plugin-credential-paths",
		Category:   "data_exfiltration",
		Severity:   detection.SeverityHigh,
		Confidence: 0.85,
		Start:      loc[0],
		End:        loc[1],
	}}, nil
}

// Keywords matches a configured denylist of case-insensitive terms.
type Keywords struct {
	RuleID     string
	Category   string
	Severity   detection.Severity
	Confidence float64
	Terms      []string
}

func (k Keywords) Name() string { return "keywords:" + k.RuleID }

func (k Keywords) Detect(ctx context.Context, text string) ([]detection.Detection, error) {
	lower := strings.ToLower(text)
	for _, term := range k.Terms {
		idx := strings.Index(lower, strings.ToLower(term))
		if idx < 0 {
			continue
		}
		return []detection.Detection{{
			RuleID:     k.RuleID,
			Category:   k.Category,
			Severity:   k.Severity,
			Confidence: detection.ClampConfidence(k.Confidence),
			Start:      idx,
			End:        idx + len(term),
		}}, nil
	}
	return nil, nil
}
