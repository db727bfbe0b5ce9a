// Package convert turns TFLite and PyTorch models into ONNX, classifying
// converter failures against a fixed rule table so callers get a root cause
// and a remediation instead of a raw subprocess log.
package convert

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleTag names one entry of the error-classification rule table.
type RuleTag string

const (
	RuleFP16NotSupported  RuleTag = "fp16_dtype_not_supported"
	RuleSelectTFOpsOrFlex RuleTag = "select_tf_ops_or_flex"
	RuleUnknownCustomOp   RuleTag = "unknown_custom_op"
	RuleShapeInference    RuleTag = "shape_inference"
	RuleUnknown           RuleTag = "unknown"
)

// Retryable reports whether the converter should be retried after remediation
// (currently only the fp16 upcast path retries automatically).
func (r RuleTag) Retryable() bool {
	return r == RuleFP16NotSupported
}

type rule struct {
	tag        RuleTag
	pattern    *regexp.Regexp
	suggestion string
}

var rules = []rule{
	{
		tag:        RuleFP16NotSupported,
		pattern:    regexp.MustCompile(`(?i)float16.*not\s+supported`),
		suggestion: "upcast the model's FLOAT16 tensors to FLOAT32 and retry",
	},
	{
		tag:        RuleSelectTFOpsOrFlex,
		pattern:    regexp.MustCompile(`(?i)(select\s*tf\s*ops|flex)`),
		suggestion: "the model depends on Select TF Ops / Flex custom ops with no ONNX equivalent; rewrite the subgraph or keep it on TFLite",
	},
	{
		tag:        RuleUnknownCustomOp,
		pattern:    regexp.MustCompile(`(?i)(custom op|unknown op)`),
		suggestion: "replace the unrecognized op with an ONNX-expressible equivalent subgraph",
	},
	{
		tag:        RuleShapeInference,
		pattern:    regexp.MustCompile(`(?i)(shape inference|dim.*mismatch)`),
		suggestion: "fix the input shape; dynamic dims often break ONNX shape inference",
	},
}

// ConversionError is a structured, classified converter failure.
type ConversionError struct {
	Tag        RuleTag
	Suggestion string
	LogTail    string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion failed [%s]: %s", e.Tag, e.Suggestion)
}

const logTailLimit = 1200

// classify matches converter output against the rule table in order,
// falling back to RuleUnknown with the tail of the log attached.
func classify(log string) *ConversionError {
	for _, r := range rules {
		if r.pattern.MatchString(log) {
			return &ConversionError{Tag: r.tag, Suggestion: r.suggestion, LogTail: tail(log, logTailLimit)}
		}
	}
	return &ConversionError{
		Tag:        RuleUnknown,
		Suggestion: "inspect the converter log; no known rule matched",
		LogTail:    tail(log, logTailLimit),
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
