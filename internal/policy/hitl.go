package policy

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrAutoSendNotAllowed = errors.New("automatic send is not allowed")

type HITLMetadata struct {
	Required          bool     `json:"required"`
	AllowedActions    []string `json:"allowedActions"`
	ProhibitedActions []string `json:"prohibitedActions"`
	Reason            string   `json:"reason"`
}

// ReplyHITLMetadata describes how generated replies may be used.
func ReplyHITLMetadata() HITLMetadata {
	return HITLMetadata{
		Required:          true,
		AllowedActions:    []string{"copy", "edit", "manual_send"},
		ProhibitedActions: []string{"auto_send", "send_now"},
		Reason:            "generated replies are suggestions and need operator review",
	}
}

// ValidateManualOnlyPayload rejects request bodies asking for replies to be
// sent without review.
func ValidateManualOnlyPayload(payload json.RawMessage) error {
	if strings.TrimSpace(string(payload)) == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}
	if hasAutoSendFlag(decoded) {
		return ErrAutoSendNotAllowed
	}
	return nil
}

func hasAutoSendFlag(value any) bool {
	switch typed := value.(type) {
	case map[string]any:
		for rawKey, child := range typed {
			switch strings.ToLower(strings.TrimSpace(rawKey)) {
			case "autosend", "auto_send", "sendimmediately", "send_immediately", "sendnow", "send_now":
				if asBool(child) {
					return true
				}
			case "mode", "deliverymode", "delivery_mode":
				if mode, ok := child.(string); ok && isAutomaticMode(mode) {
					return true
				}
			}
			if hasAutoSendFlag(child) {
				return true
			}
		}
	case []any:
		for _, child := range typed {
			if hasAutoSendFlag(child) {
				return true
			}
		}
	}
	return false
}

func asBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1", "yes", "on":
			return true
		}
	case float64:
		return typed != 0
	}
	return false
}

func isAutomaticMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "auto", "automatic", "autosend", "send_now", "without_confirmation":
		return true
	}
	return false
}
