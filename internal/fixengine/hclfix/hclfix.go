// Package hclfix implements fixengine.Editor for Terraform/HCL files
// using hclwrite, which preserves formatting and comments across an
// edit instead of round-tripping through an AST that would reformat
// the whole file.
package hclfix

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Editor parses content with hclwrite, locates the block whose body
// starts at or before the finding's line, passes that block's body
// bytes to the Pattern's Apply func, and merges the reparsed result
// back into the block.
type Editor struct{}

// New returns an hclfix Editor.
func New() Editor { return Editor{} }

func (Editor) Edit(pattern fixengine.Pattern, content []byte, line int) ([]byte, error) {
	f, diags := hclwrite.ParseConfig(content, "finding.tf", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclfix: parse error: %s", diags.Error())
	}
	block := blockAtLine(f.Body(), line)
	if block == nil {
		return nil, fmt.Errorf("hclfix: no block found at or before line %d", line)
	}
	if pattern.Apply == nil {
		return nil, fmt.Errorf("hclfix: pattern %s has no Apply func", pattern.ID)
	}
	// Pattern.Apply operates on the serialized block bytes so the same
	// fixengine.Pattern shape (content in, content out) works across
	// every artifact kind; hclfix re-parses only the block's own bytes.
	rewritten, err := pattern.Apply(block.Body().BuildTokens(nil).Bytes(), line)
	if err != nil {
		return nil, err
	}
	replacement, diags := hclwrite.ParseConfig(append([]byte("block {\n"), append(rewritten, []byte("\n}\n")...)...), "patch.tf", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclfix: patch did not reparse: %s", diags.Error())
	}
	patched := replacement.Body().Blocks()
	if len(patched) != 1 {
		return nil, fmt.Errorf("hclfix: patch produced %d blocks, expected 1", len(patched))
	}
	block.Body().Clear()
	copyBody(block.Body(), patched[0].Body())
	return f.Bytes(), nil
}

// copyBody transfers every attribute and nested block from src into
// dst, recursing into nested block bodies so a pattern that appends a
// multi-level block (e.g. hclfix.AppendEncryptionBlock's
// server_side_encryption_configuration > rule >
// apply_server_side_encryption_by_default chain) survives the
// reparse-and-merge round trip Edit performs.
func copyBody(dst, src *hclwrite.Body) {
	for name, attr := range src.Attributes() {
		dst.SetAttributeRaw(name, attr.Expr().BuildTokens(nil))
	}
	for _, b := range src.Blocks() {
		nb := dst.AppendNewBlock(b.Type(), b.Labels())
		copyBody(nb.Body(), b.Body())
	}
}

func blockAtLine(body *hclwrite.Body, line int) *hclwrite.Block {
	var best *hclwrite.Block
	for _, b := range body.Blocks() {
		rng := b.Body().Range()
		if rng.Start.Line <= line {
			best = b
		}
	}
	return best
}

// SetBooleanAttribute returns a Pattern.Apply func that sets a single
// boolean attribute to value, appending it if absent — the shape
// needed for single-flag fixes such as turning on block_public_acls.
func SetBooleanAttribute(name string, value bool) func([]byte, int) ([]byte, error) {
	return func(content []byte, _ int) ([]byte, error) {
		wrapped := append([]byte("x {\n"), append(content, []byte("\n}\n")...)...)
		f, diags := hclwrite.ParseConfig(wrapped, "attr.tf", hcl.InitialPos)
		if diags.HasErrors() {
			return nil, fmt.Errorf("hclfix: attribute patch parse error: %s", diags.Error())
		}
		blocks := f.Body().Blocks()
		if len(blocks) != 1 {
			return nil, fmt.Errorf("hclfix: expected 1 synthetic block, got %d", len(blocks))
		}
		blocks[0].Body().SetAttributeValue(name, cty.BoolVal(value))
		out := blocks[0].Body().BuildTokens(nil).Bytes()
		return out, nil
	}
}

// AppendEncryptionBlock returns a Pattern.Apply func that inserts an
// inline `server_side_encryption_configuration { rule {
// apply_server_side_encryption_by_default { sse_algorithm = "AES256" }
// } }` block into the target resource body, the fix CKV_AWS_19
// (S3 bucket without default encryption) expects. A no-op if the
// block is already present, so a second pass over an already-fixed
// resource is idempotent (spec §8 property 5).
func AppendEncryptionBlock() func([]byte, int) ([]byte, error) {
	return func(content []byte, _ int) ([]byte, error) {
		wrapped := append([]byte("x {\n"), append(content, []byte("\n}\n")...)...)
		f, diags := hclwrite.ParseConfig(wrapped, "block.tf", hcl.InitialPos)
		if diags.HasErrors() {
			return nil, fmt.Errorf("hclfix: block patch parse error: %s", diags.Error())
		}
		blocks := f.Body().Blocks()
		if len(blocks) != 1 {
			return nil, fmt.Errorf("hclfix: expected 1 synthetic block, got %d", len(blocks))
		}
		body := blocks[0].Body()
		for _, existing := range body.Blocks() {
			if existing.Type() == "server_side_encryption_configuration" {
				return body.BuildTokens(nil).Bytes(), nil
			}
		}
		sse := body.AppendNewBlock("server_side_encryption_configuration", nil)
		rule := sse.Body().AppendNewBlock("rule", nil)
		byDefault := rule.Body().AppendNewBlock("apply_server_side_encryption_by_default", nil)
		byDefault.Body().SetAttributeValue("sse_algorithm", cty.StringVal("AES256"))
		return body.BuildTokens(nil).Bytes(), nil
	}
}
