// Package builtin registers the engine's out-of-the-box Patterns.
// Each one is deliberately narrow (one rule ID family, one artifact
// kind) rather than a general-purpose rewriter, matching the
// selection-by-rule-ID contract fixengine.Engine implements.
package builtin

import (
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/hclfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/jsonfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/pyfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/yamlfix"
	"github.com/remediation-kit/remediation-kit/internal/registry"
)

// RegisterAll adds every built-in pattern to e, in an order that
// places the most rule-specific patterns first.
func RegisterAll(e *fixengine.Engine) {
	e.RegisterPattern(fixengine.Pattern{
		ID:          "py-hardcoded-secret",
		Description: "replace a hardcoded literal with an environment lookup",
		RuleIDs:     []string{"B105"},
		Artifact:    fixengine.ArtifactPython,
		Risk:        registry.RiskSafe,
		Apply:       pyfix.ReplaceHardcodedSecret,
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "py-subprocess-shell-false",
		Description: "disable shell=True on a subprocess invocation",
		RuleIDs:     []string{"B602", "B603", "B604"},
		Artifact:    fixengine.ArtifactPython,
		Risk:        registry.RiskMedium,
		Apply:       pyfix.DisableShellTrue,
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "hcl-s3-encryption",
		Description: "add a server_side_encryption_configuration block (AES256) to an S3 bucket",
		RuleIDs:     []string{"CKV_AWS_19"},
		Artifact:    fixengine.ArtifactHCL,
		Risk:        registry.RiskMedium,
		Apply:       hclfix.AppendEncryptionBlock(),
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "hcl-s3-block-public-acls",
		Description: "set block_public_acls = true on an S3 public access block",
		RuleIDs:     []string{"CKV_AWS_54"},
		Artifact:    fixengine.ArtifactHCL,
		Risk:        registry.RiskMedium,
		Apply:       hclfix.SetBooleanAttribute("block_public_acls", true),
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "yaml-k8s-disable-privileged",
		Description: "set securityContext.privileged to false on a Kubernetes container",
		RuleIDs:     []string{"CKV_K8S_16"},
		Artifact:    fixengine.ArtifactYAML,
		Risk:        registry.RiskMedium,
		Apply:       yamlfix.SetMappingKey("privileged", "false"),
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "json-add-integrity-field",
		Description: "add a missing \"integrity\" field to a lockfile entry",
		RuleIDs:     []string{"NPM-SCA-INTEGRITY"},
		Artifact:    fixengine.ArtifactJSON,
		Risk:        registry.RiskSafe,
		Apply:       jsonfix.AddAtPointer("/integrity", `""`),
	})
	e.RegisterPattern(fixengine.Pattern{
		ID:          "json-k8s-disable-privilege-escalation",
		Description: "set allowPrivilegeEscalation to false in a JSON-rendered Kubernetes container spec",
		RuleIDs:     []string{"CKV_K8S_20"},
		Artifact:    fixengine.ArtifactJSON,
		Risk:        registry.RiskHigh,
		Apply:       jsonfix.ReplaceAtPointer("/securityContext/allowPrivilegeEscalation", "false"),
	})
}
