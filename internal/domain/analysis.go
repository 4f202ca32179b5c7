package domain

// MessageAnalysis is the structured result of the analyze action.
type MessageAnalysis struct {
	Sentiment         string   `json:"sentiment"`
	Priority          string   `json:"priority"`
	SuggestedResponse string   `json:"suggestedResponse"`
	EngagementType    string   `json:"engagementType"`
	ResponseUrgency   string   `json:"responseUrgency"`
	KeyTopics         []string `json:"keyTopics"`
	CustomerIntent    string   `json:"customerIntent"`
	SuggestedActions  []string `json:"suggestedActions"`
}

type ReplyOption struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AutoReplies always holds the quick, detailed and conversational variants.
type AutoReplies struct {
	Options []ReplyOption `json:"options"`
}

type Categorization struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
}
