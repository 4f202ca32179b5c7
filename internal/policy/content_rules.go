package policy

import (
	"errors"
	"strings"
)

var ErrContentPolicyViolation = errors.New("content policy violation")

type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PolicyViolationError struct {
	Violations []Violation
}

func (e *PolicyViolationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrContentPolicyViolation.Error()
	}
	return "content policy violation: " + e.Violations[0].Message
}

func (e *PolicyViolationError) Unwrap() error {
	return ErrContentPolicyViolation
}

const maxGeneratedTextLength = 4000

var blockedReplyTerms = []string{
	"click this link to verify your password",
	"send us your password",
	"share your card number",
	"wire the money",
	"phishing",
	"malware",
	"guaranteed returns",
}

// ScreenGeneratedText rejects AI generated text that must never be offered
// to an operator as a reply.
func ScreenGeneratedText(values ...string) error {
	violations := make([]Violation, 0, 2)
	for _, value := range values {
		if len(value) > maxGeneratedTextLength {
			violations = append(violations, Violation{
				Code:    "text_too_large",
				Message: "generated text exceeds size limits",
			})
			break
		}
	}

	content := strings.ToLower(strings.Join(values, "\n"))
	for _, term := range blockedReplyTerms {
		if strings.Contains(content, term) {
			violations = append(violations, Violation{
				Code:    "blocked_content",
				Message: "generated text contains blocked content",
			})
			break
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &PolicyViolationError{Violations: violations}
}
